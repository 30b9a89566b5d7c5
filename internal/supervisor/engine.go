package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"llamad/internal/variant"
	"llamad/pkg/types"
)

// Engine abstracts how inference processes are launched. The supervisor
// drives the lifecycle; the engine only knows how to spawn one process and
// what "ready" means for it.
type Engine interface {
	// Spawn launches one process for alias. ctx bounds launch preparation
	// only; a process that started successfully outlives it.
	Spawn(ctx context.Context, alias types.Alias) (Process, error)
}

// Process is one live engine subprocess.
type Process interface {
	PID() int
	Port() int
	BaseURL() string
	// ProbeReady performs a single readiness probe.
	ProbeReady(ctx context.Context) error
	// Done is closed when the process exits; ExitErr is valid afterwards.
	Done() <-chan struct{}
	ExitErr() error
	// Stop terminates gracefully (SIGTERM), escalating to SIGKILL when ctx
	// expires before the process exits.
	Stop(ctx context.Context) error
}

// LlamaEngine spawns llama-server binaries chosen by the variant selector.
type LlamaEngine struct {
	selector  *variant.Selector
	modelsDir string
	host      string
	portMin   int
	portMax   int
	client    *http.Client
	log       zerolog.Logger
}

// NewLlamaEngine constructs the production engine. portMin/portMax of zero
// mean "any free ephemeral port".
func NewLlamaEngine(selector *variant.Selector, modelsDir string, portMin, portMax int, log zerolog.Logger) *LlamaEngine {
	return &LlamaEngine{
		selector:  selector,
		modelsDir: modelsDir,
		host:      "127.0.0.1",
		portMin:   portMin,
		portMax:   portMax,
		// Timeout stays 0: every call carries a context deadline.
		client: &http.Client{Timeout: 0},
		log:    log,
	}
}

// ModelPath resolves the on-disk model file for an alias:
// <modelsDir>/<repo>/[<snapshot>/]<filename>.
func ModelPath(modelsDir string, a types.Alias) string {
	if a.Snapshot != "" {
		return filepath.Join(modelsDir, a.Repo, a.Snapshot, a.Filename)
	}
	return filepath.Join(modelsDir, a.Repo, a.Filename)
}

// buildArgs assembles the llama-server command line. Each context param is
// split on whitespace so "--ctx-size 2048" becomes two argv entries.
func buildArgs(a types.Alias, modelPath, host string, port int) []string {
	args := []string{
		"--alias", a.Alias,
		"--model", modelPath,
		"--host", host,
		"--port", strconv.Itoa(port),
	}
	if a.ChatTemplate != "" {
		args = append(args, "--chat-template", a.ChatTemplate)
	}
	for _, p := range a.ContextParams {
		args = append(args, strings.Fields(p)...)
	}
	return args
}

func (g *LlamaEngine) Spawn(ctx context.Context, a types.Alias) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, spawnError{cause: err}
	}
	d := g.selector.Selected()
	if d.ExecPath == "" {
		return nil, spawnError{cause: fmt.Errorf("no engine variant selected")}
	}
	modelPath := ModelPath(g.modelsDir, a)
	// Launch parameter validity, including the model file itself, is only
	// checked here: it depends on what is installed, not on the alias record.
	if _, err := exec.LookPath(d.ExecPath); err != nil {
		return nil, spawnError{cause: err}
	}
	var port int
	var err error
	if g.portMin > 0 && g.portMax >= g.portMin {
		port, err = pickPortInRange(g.host, g.portMin, g.portMax)
	} else {
		port, err = pickFreePort(g.host)
	}
	if err != nil {
		return nil, spawnError{cause: err}
	}

	cmd := exec.Command(d.ExecPath, buildArgs(a, modelPath, g.host, port)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, spawnError{cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, spawnError{cause: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, spawnError{cause: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, spawnError{cause: err}
	}

	p := &llamaProc{
		cmd:     cmd,
		baseURL: fmt.Sprintf("http://%s:%d", g.host, port),
		port:    port,
		client:  g.client,
		done:    make(chan struct{}),
	}
	plog := g.log.With().Str("alias", a.Alias).Int("pid", cmd.Process.Pid).Logger()
	plog.Info().Int("port", port).Str("variant", d.Name).Str("model", modelPath).Msg("engine spawned")

	// Engine output feeds the structured log; stderr also keeps a bounded
	// tail for spawn-failure diagnostics.
	go func() {
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
		for sc.Scan() {
			plog.Debug().Str("stream", "stdout").Msg(sc.Text())
		}
	}()
	go func() {
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
		for sc.Scan() {
			line := sc.Text()
			p.appendStderr(line)
			plog.Warn().Str("stream", "stderr").Msg(line)
		}
	}()
	go func() {
		p.exitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type llamaProc struct {
	cmd     *exec.Cmd
	baseURL string
	port    int
	client  *http.Client
	done    chan struct{}
	exitErr error

	tailMu sync.Mutex
	tail   []string
}

const stderrTailLines = 20

func (p *llamaProc) appendStderr(line string) {
	p.tailMu.Lock()
	p.tail = append(p.tail, line)
	if len(p.tail) > stderrTailLines {
		p.tail = p.tail[len(p.tail)-stderrTailLines:]
	}
	p.tailMu.Unlock()
}

// StderrTail returns the last captured stderr lines, newline-joined.
func (p *llamaProc) StderrTail() string {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	return strings.Join(p.tail, "\n")
}

func (p *llamaProc) PID() int             { return p.cmd.Process.Pid }
func (p *llamaProc) Port() int            { return p.port }
func (p *llamaProc) BaseURL() string      { return p.baseURL }
func (p *llamaProc) Done() <-chan struct{} { return p.done }
func (p *llamaProc) ExitErr() error       { return p.exitErr }

func (p *llamaProc) ProbeReady(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health: %s", resp.Status)
	}
	return nil
}

func (p *llamaProc) Stop(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		<-p.done
		return nil
	}
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", host+":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	_, portStr, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

// probeTimeout bounds a single readiness probe; the overall start budget
// lives in Config.StartTimeout.
const probeTimeout = time.Second
