package theme

// thRegisterBuiltins registers all built-in themes in the registry.
func thRegisterBuiltins() {
	for _, t := range []Theme{
		thDefaultTheme(),
		thGruvboxTheme(),
		thNordTheme(),
		thCatppuccinTheme(),
		thDraculaTheme(),
		thTokyoNightTheme(),
	} {
		Register(t)
	}
}

// thDefaultTheme returns the classic high-contrast bar palette.
func thDefaultTheme() Theme {
	return Theme{
		Name:       "default",
		Foreground: "#ffffff",
		Dim:        "#888888",
		Separator:  "#555555",
		OK:         "#00ff00",
		Warn:       "#ffff00",
		Critical:   "#ff0000",
	}
}

// thGruvboxTheme returns the warm retro Gruvbox theme.
func thGruvboxTheme() Theme {
	return Theme{
		Name:       "gruvbox",
		Foreground: "#ebdbb2",
		Dim:        "#928374",
		Separator:  "#504945",
		OK:         "#b8bb26",
		Warn:       "#fabd2f",
		Critical:   "#fb4934",
	}
}

// thNordTheme returns the arctic blue Nord theme.
func thNordTheme() Theme {
	return Theme{
		Name:       "nord",
		Foreground: "#eceff4",
		Dim:        "#4c566a",
		Separator:  "#3b4252",
		OK:         "#a3be8c",
		Warn:       "#ebcb8b",
		Critical:   "#bf616a",
	}
}

// thCatppuccinTheme returns the pastel Catppuccin Mocha theme.
func thCatppuccinTheme() Theme {
	return Theme{
		Name:       "catppuccin",
		Foreground: "#cdd6f4",
		Dim:        "#6c7086",
		Separator:  "#313244",
		OK:         "#a6e3a1",
		Warn:       "#f9e2af",
		Critical:   "#f38ba8",
	}
}

// thDraculaTheme returns the Dracula theme.
func thDraculaTheme() Theme {
	return Theme{
		Name:       "dracula",
		Foreground: "#f8f8f2",
		Dim:        "#6272a4",
		Separator:  "#44475a",
		OK:         "#50fa7b",
		Warn:       "#f1fa8c",
		Critical:   "#ff5555",
	}
}

// thTokyoNightTheme returns the Tokyo Night theme.
func thTokyoNightTheme() Theme {
	return Theme{
		Name:       "tokyo-night",
		Foreground: "#c0caf5",
		Dim:        "#565f89",
		Separator:  "#292e42",
		OK:         "#9ece6a",
		Warn:       "#e0af68",
		Critical:   "#f7768e",
	}
}
