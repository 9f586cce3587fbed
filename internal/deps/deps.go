// Package deps validates external service dependencies at startup. The
// policy is fail fast: when a required service is unreachable the process
// reports every failure at once and refuses to boot, instead of limping
// along half-connected.
package deps

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kgas/internal/store"
	apperrors "kgas/pkg/errors"
	"kgas/pkg/logger"
)

const probeTimeout = 5 * time.Second

// Check is one dependency probe. Required checks gate startup; optional
// ones only show up in the report.
type Check struct {
	Name     string
	Required bool
	Hint     string
	Probe    func(ctx context.Context) error
}

// Result is the outcome of one probe
type Result struct {
	Name      string        `json:"name"`
	Required  bool          `json:"required"`
	Available bool          `json:"available"`
	Latency   time.Duration `json:"latency"`
	Err       string        `json:"error,omitempty"`
}

// Validator runs dependency probes concurrently
type Validator struct {
	checks []Check
	logger *zap.Logger
}

// NewValidator creates a validator over the given checks
func NewValidator(checks ...Check) *Validator {
	return &Validator{checks: checks, logger: logger.Get()}
}

// Add appends another check
func (v *Validator) Add(check Check) {
	v.checks = append(v.checks, check)
}

// Report probes every dependency concurrently and returns all outcomes
// sorted by name. It never fails; Validate applies the startup policy.
func (v *Validator) Report(ctx context.Context) []Result {
	results := make([]Result, len(v.checks))
	g, ctx := errgroup.WithContext(ctx)
	for i, check := range v.checks {
		i, check := i, check
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			started := time.Now()
			err := check.Probe(probeCtx)
			result := Result{
				Name:      check.Name,
				Required:  check.Required,
				Available: err == nil,
				Latency:   time.Since(started),
			}
			if err != nil {
				result.Err = err.Error()
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// Validate probes every dependency and fails when any required one is
// unreachable. The error names every failed service with its remediation
// hint so an operator fixes the environment in one pass.
func (v *Validator) Validate(ctx context.Context) ([]Result, error) {
	results := v.Report(ctx)

	var failed []string
	var details []string
	for _, r := range results {
		if r.Available {
			v.logger.Info("Dependency available",
				zap.String("name", r.Name),
				zap.Duration("latency", r.Latency),
			)
			continue
		}
		if !r.Required {
			v.logger.Warn("Optional dependency unavailable",
				zap.String("name", r.Name),
				zap.String("error", r.Err),
			)
			continue
		}
		failed = append(failed, r.Name)
		detail := fmt.Sprintf("%s: %s", r.Name, r.Err)
		if hint := v.hintFor(r.Name); hint != "" {
			detail += " (" + hint + ")"
		}
		details = append(details, detail)
	}

	if len(failed) > 0 {
		return results, apperrors.NewDependencyUnavailable(failed, errors.New(strings.Join(details, "; ")))
	}
	return results, nil
}

func (v *Validator) hintFor(name string) string {
	for _, check := range v.checks {
		if check.Name == name {
			return check.Hint
		}
	}
	return ""
}

// Neo4jCheck probes graph driver connectivity
func Neo4jCheck(driver neo4j.DriverWithContext) Check {
	return Check{
		Name:     "neo4j",
		Required: true,
		Hint:     "start Neo4j and check NEO4J_URI / NEO4J_PASSWORD",
		Probe:    driver.VerifyConnectivity,
	}
}

// StoreCheck pings the metadata store
func StoreCheck(s *store.Store) Check {
	return Check{
		Name:     "sqlite",
		Required: true,
		Hint:     "check SQLITE_PATH points at a writable location",
		Probe:    s.Ping,
	}
}

// LLMCheck probes TCP reachability of the model gateway. Extraction can
// be optional for a deployment, so the caller decides whether a dead
// gateway blocks startup.
func LLMCheck(endpoint string, required bool) Check {
	return Check{
		Name:     "llm",
		Required: required,
		Hint:     "start the LiteLLM gateway or check LITELLM_URL",
		Probe: func(ctx context.Context) error {
			address, err := dialAddress(endpoint)
			if err != nil {
				return err
			}
			var dialer net.Dialer
			conn, err := dialer.DialContext(ctx, "tcp", address)
			if err != nil {
				return err
			}
			return conn.Close()
		},
	}
}

// dialAddress reduces an endpoint URL to host:port, defaulting the port
// from the scheme
func dialAddress(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	switch u.Scheme {
	case "https":
		return net.JoinHostPort(u.Hostname(), "443"), nil
	default:
		return net.JoinHostPort(u.Hostname(), "80"), nil
	}
}
