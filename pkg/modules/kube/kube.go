// Package kube provides a collector that shows Kubernetes node readiness
// for one kubeconfig context. It queries the API server via client-go.
package kube

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
	"gitlab.com/tinyland/lab/pulsebar/pkg/theme"
)

// DefaultInterval is the polling interval when none is configured.
const DefaultInterval = 15 * time.Second

const icon = "⎈"

// Config holds the configuration for the Kubernetes collector.
type Config struct {
	// Interval is the collection polling interval. Defaults to 15s.
	Interval time.Duration

	// Kubeconfig is the path to a kubeconfig file. If empty, the default
	// loading rules apply (KUBECONFIG env, ~/.kube/config).
	Kubeconfig string

	// Context selects a kubeconfig context. If empty, the current context
	// is used.
	Context string
}

// Summary is the readiness of one cluster's nodes.
type Summary struct {
	Context  string
	Ready    int
	Total    int
	NotReady []string // names of nodes that are not Ready
}

// NodeLister abstracts the single API call the collector needs.
type NodeLister interface {
	ListNodes(ctx context.Context) ([]corev1.Node, error)
}

// clientset adapts a kubernetes.Interface to NodeLister.
type clientset struct {
	cs kubernetes.Interface
}

func (c *clientset) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	list, err := c.cs.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// clientFactory builds a NodeLister for a kubeconfig and context and
// reports the resolved context name. Tests inject their own.
type clientFactory func(kubeconfig, context string) (NodeLister, string, error)

// defaultClientFactory loads the kubeconfig with client-go's default rules.
func defaultClientFactory(kubeconfig, ctxName string) (NodeLister, string, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{}
	if ctxName != "" {
		overrides.CurrentContext = ctxName
	}
	loader := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)

	if ctxName == "" {
		raw, err := loader.RawConfig()
		if err != nil {
			return nil, "", fmt.Errorf("load kubeconfig: %w", err)
		}
		ctxName = raw.CurrentContext
	}
	cfg, err := loader.ClientConfig()
	if err != nil {
		return nil, "", fmt.Errorf("build client config: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, "", fmt.Errorf("create clientset: %w", err)
	}
	return &clientset{cs: cs}, ctxName, nil
}

// Collector polls node readiness.
type Collector struct {
	cfg     Config
	factory clientFactory
	theme   theme.Theme
	logger  *slog.Logger

	mu      sync.Mutex
	client  NodeLister
	context string
}

var _ modules.Collector = (*Collector)(nil)

// New creates a Collector. The API client is built on the first Collect
// and rebuilt after a failed one.
func New(cfg Config, th theme.Theme, logger *slog.Logger) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cfg:     cfg,
		factory: defaultClientFactory,
		theme:   th,
		logger:  logger,
	}
}

// newWithFactory creates a Collector with a custom client factory (for tests).
func newWithFactory(cfg Config, th theme.Theme, factory clientFactory) *Collector {
	c := New(cfg, th, nil)
	c.factory = factory
	return c
}

// Name returns "kube" or "kube:<context>" when a context is configured.
func (c *Collector) Name() string {
	if c.cfg.Context == "" {
		return "kube"
	}
	return "kube:" + c.cfg.Context
}

// Interval returns the configured polling interval.
func (c *Collector) Interval() time.Duration { return c.cfg.Interval }

// Collect lists the cluster's nodes and renders their readiness.
func (c *Collector) Collect(ctx context.Context) (*block.Block, error) {
	client, ctxName, err := c.connect()
	if err != nil {
		return nil, fmt.Errorf("kube: %w", err)
	}
	nodes, err := client.ListNodes(ctx)
	if err != nil {
		c.reset()
		return nil, fmt.Errorf("kube: list nodes: %w", err)
	}

	s := Summarize(ctxName, nodes)
	if len(s.NotReady) > 0 {
		c.logger.Debug("nodes not ready", "module", c.Name(), "nodes", s.NotReady)
	}
	return c.Block(s), nil
}

// Block renders s as "⎈ context ready/total", short "⎈ ready/total",
// in the warn color unless every node is ready.
func (c *Collector) Block(s Summary) *block.Block {
	counts := fmt.Sprintf("%d/%d", s.Ready, s.Total)
	full := icon + " " + counts
	if s.Context != "" {
		full = icon + " " + s.Context + " " + counts
	}
	color := ""
	if s.Ready < s.Total {
		color = c.theme.Warn
	}
	return block.New(full).WithShort(icon + " " + counts).WithColor(color)
}

func (c *Collector) connect() (NodeLister, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, c.context, nil
	}
	client, name, err := c.factory(c.cfg.Kubeconfig, c.cfg.Context)
	if err != nil {
		return nil, "", err
	}
	c.client, c.context = client, name
	return client, name, nil
}

func (c *Collector) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = nil
}

// Summarize counts ready nodes.
func Summarize(context string, nodes []corev1.Node) Summary {
	s := Summary{Context: context, Total: len(nodes)}
	for i := range nodes {
		if isNodeReady(&nodes[i]) {
			s.Ready++
		} else {
			s.NotReady = append(s.NotReady, nodes[i].Name)
		}
	}
	return s
}

// isNodeReady checks whether a node has a Ready condition set to True.
func isNodeReady(node *corev1.Node) bool {
	if node == nil {
		return false
	}
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
