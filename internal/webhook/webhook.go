package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/mirrorops/gitmirror/internal/config"
	"github.com/mirrorops/gitmirror/internal/mirror"
)

// Mirrorer runs one mirror operation. Satisfied by *mirror.Service.
type Mirrorer interface {
	Run(ctx context.Context) (*mirror.Result, error)
}

// GitHubPushEvent represents the relevant fields from a GitHub push webhook.
type GitHubPushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// Server is a long-running HTTP server that triggers mirror runs on GitHub
// push events. Runs are debounced and executed with single-flight semantics,
// so at most one mirror operates against the target repository at a time.
type Server struct {
	cfg      *config.Config
	mirrorer Mirrorer
	secret   []byte

	baseCtx context.Context // set at Start; parent of triggered runs

	mu      sync.Mutex // guards running and pending
	running bool       // whether a mirror is currently in progress
	pending bool       // whether another run is needed after the current one

	debounce *debouncer
}

// debouncer coalesces bursts of webhook events into a single trigger.
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// NewServer creates a webhook server. The HMAC secret is loaded from the
// configured secret file.
func NewServer(cfg *config.Config, mirrorer Mirrorer) (*Server, error) {
	secret, err := os.ReadFile(cfg.Serve.GitHubWebhookSecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook secret: %w", err)
	}

	return &Server{
		cfg:      cfg,
		mirrorer: mirrorer,
		secret:   []byte(strings.TrimSpace(string(secret))),
		debounce: &debouncer{delay: 2 * time.Second},
	}, nil
}

// Start runs an initial mirror and then serves webhook requests until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	log := clog.FromContext(ctx)
	s.baseCtx = ctx

	log.Infof("performing initial mirror before starting webhook server")
	s.performMirror(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebhook)

	server := &http.Server{
		Addr:              s.cfg.Serve.ListenAddr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("webhook server listening on %s", s.cfg.Serve.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Infof("shutting down webhook server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleWebhook handles incoming GitHub webhook requests.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	log := clog.FromContext(r.Context())

	if r.Method != http.MethodPost {
		log.Warnf("rejecting %s request", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if contentType := r.Header.Get("Content-Type"); contentType != "application/json" {
		log.Warnf("rejecting request with content type %q", contentType)
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB limit
	if err != nil {
		log.Errorf("failed to read request body: %v", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	if !s.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		log.Warnf("rejecting request with invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if !s.isEventTypeAllowed(eventType) {
		log.Infof("ignoring disallowed event type %q", eventType)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Event type not configured for mirroring\n")
		return
	}

	var event GitHubPushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Errorf("failed to parse webhook payload: %v", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if !s.isRefAllowed(event.Ref) {
		log.Infof("ignoring disallowed ref %q", event.Ref)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Ref not configured for mirroring\n")
		return
	}

	log.Infof("accepted %s event for %s at %s", eventType, event.Repository.FullName, event.After)

	s.debounce.trigger(func() {
		s.performMirror(s.baseCtx)
	})

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Mirror triggered\n")
}

// verifySignature verifies the GitHub webhook signature.
func (s *Server) verifySignature(body []byte, signature string) bool {
	// GitHub signature format: sha256=<hex>
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison
	return hmac.Equal([]byte(signature), []byte(expected))
}

// isEventTypeAllowed checks if the event type is in the allowed list.
func (s *Server) isEventTypeAllowed(eventType string) bool {
	if len(s.cfg.Serve.AllowedEventTypes) == 0 {
		return true // no filter configured
	}
	for _, allowed := range s.cfg.Serve.AllowedEventTypes {
		if eventType == allowed {
			return true
		}
	}
	return false
}

// isRefAllowed checks if the ref is in the allowed list.
func (s *Server) isRefAllowed(ref string) bool {
	if len(s.cfg.Serve.AllowedRefs) == 0 {
		return true // no filter configured
	}
	for _, allowed := range s.cfg.Serve.AllowedRefs {
		if ref == allowed {
			return true
		}
	}
	return false
}

// performMirror executes a mirror run with single-flight semantics. If a run
// is already in progress, at most one additional run is queued; further
// concurrent requests are dropped to avoid unbounded goroutine pile-up.
func (s *Server) performMirror(ctx context.Context) {
	log := clog.FromContext(ctx)

	s.mu.Lock()
	if s.running {
		s.pending = true
		s.mu.Unlock()
		log.Infof("mirror already in progress, queuing pending re-run")
		return
	}
	s.running = true
	s.mu.Unlock()

	for {
		result, err := s.mirrorer.Run(ctx)
		switch {
		case err != nil:
			log.Errorf("mirror run failed during compensation: %v", err)
		case result.Status == mirror.StatusError:
			log.Errorf("mirror run failed: %s", result.Message)
		default:
			log.Infof("mirror run completed: %d changes", len(result.Changes))
		}

		// Atomically check whether another run was requested while we were
		// mirroring. If not, release the running slot and stop; if yes, clear
		// the flag and loop to service that one pending request.
		s.mu.Lock()
		if !s.pending {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()

		log.Infof("re-running mirror due to pending request")
	}
}

// trigger schedules the callback to run after the debounce delay.
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}
