// cmd/frame.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/config"
	"github.com/xkilldash9x/keynav/internal/crossframe"
	"github.com/xkilldash9x/keynav/internal/dom"
	"github.com/xkilldash9x/keynav/internal/focus"
	"github.com/xkilldash9x/keynav/internal/observability"
	"github.com/xkilldash9x/keynav/internal/replay"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

const defaultFramePage = `<html><body>
<button id="first">first</button>
<button id="second">second</button>
<button id="third">third</button>
</body></html>`

type frameOptions struct {
	id        string
	listen    string
	connect   string
	page      string
	behaviors string
	focus     string
	shell     bool
}

func newFrameCmd() *cobra.Command {
	var opts frameOptions

	frameCmd := &cobra.Command{
		Use:   "frame",
		Short: "Runs a frame peer that shares focus state with other frames over websocket",
		Example: `  keynav frame --listen :8181 --id top
  keynav frame --connect ws://localhost:8181/ --id child --shell`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			var in io.Reader
			if opts.shell {
				in = cmd.InOrStdin()
			}
			return runFrame(cmd.Context(), opts, cfg, observability.GetLogger(), in, &syncWriter{w: cmd.OutOrStdout()}, nil)
		},
	}

	frameCmd.Flags().StringVar(&opts.id, "id", "", "frame id (default: random)")
	frameCmd.Flags().StringVarP(&opts.listen, "listen", "l", "", "address to accept frames on, e.g. :8181")
	frameCmd.Flags().StringVar(&opts.connect, "connect", "", "websocket URL of a listening frame, e.g. ws://localhost:8181/")
	frameCmd.Flags().StringVarP(&opts.page, "page", "p", "", "HTML page hosted by this frame (default: three buttons)")
	frameCmd.Flags().StringVarP(&opts.behaviors, "behaviors", "b", "", "YAML manifest binding behaviors to XPath selectors")
	frameCmd.Flags().StringVar(&opts.focus, "focus", "", "XPath of an element to focus once connected")
	frameCmd.Flags().BoolVar(&opts.shell, "shell", false, "read commands (focus, key, remote, peers, ping) from stdin")
	frameCmd.MarkFlagsMutuallyExclusive("listen", "connect")

	return frameCmd
}

// syncWriter serializes writes coming from the loop and the shell.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// framePeer is the running frame with the loop that owns it.
type framePeer struct {
	loop  *scheduler.Loop
	inst  *focus.Instance
	frame *crossframe.Frame
	out   io.Writer
}

// runFrame hosts a frame until ctx is done or, when connecting, the link drops.
// ready receives the listen address once the frame accepts connections.
func runFrame(ctx context.Context, opts frameOptions, cfg *config.Config, logger *zap.Logger, in io.Reader, out io.Writer, ready chan<- string) error {
	if opts.listen == "" && opts.connect == "" {
		return errors.New("one of --listen or --connect is required")
	}
	if !cfg.CrossFrame().Enabled {
		return errors.New("crossframe is disabled in the configuration")
	}

	doc, err := loadFramePage(opts.page)
	if err != nil {
		return err
	}
	manifest, err := replay.LoadManifest(opts.behaviors)
	if err != nil {
		return err
	}

	p, err := startFramePeer(ctx, doc, manifest, opts.id, cfg, logger, out)
	if err != nil {
		return err
	}
	defer p.stop()

	wsCfg := cfg.CrossFrame().WebSocket
	g, gctx := errgroup.WithContext(ctx)

	if opts.listen != "" {
		ln, err := net.Listen("tcp", opts.listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", opts.listen, err)
		}
		srv := &http.Server{
			Handler:           crossframe.Handler(wsCfg, logger, func(c *crossframe.WebSocketChannel) { p.attach(c) }),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		logger.Info("Frame listening.", zap.String("addr", ln.Addr().String()), zap.String("frame", p.frameID()))
		if ready != nil {
			ready <- ln.Addr().String()
		}
	} else {
		c, err := crossframe.Dial(ctx, opts.connect, wsCfg, logger)
		if err != nil {
			return err
		}
		p.attach(c)
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-c.Done():
				return fmt.Errorf("connection to %s lost", opts.connect)
			}
		})
	}

	if opts.focus != "" {
		if err := p.focusXPath(ctx, opts.focus); err != nil {
			return err
		}
	}
	if in != nil {
		g.Go(func() error { return p.shell(gctx, in) })
	}
	return g.Wait()
}

func loadFramePage(path string) (*dom.Document, error) {
	if path == "" {
		return dom.ParseString(defaultFramePage)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()
	return dom.Parse(f)
}

func startFramePeer(ctx context.Context, doc *dom.Document, m *replay.Manifest, id string, cfg *config.Config, logger *zap.Logger, out io.Writer) (*framePeer, error) {
	p := &framePeer{loop: scheduler.NewLoop(logger), out: out}
	p.loop.Start(context.Background())

	var bindErr error
	err := p.loop.Do(ctx, func() {
		host := dom.NewStaticHost(doc, dom.WithAutoLayout(20))
		p.inst = focus.New(doc, host, p.loop, cfg.Engine(), logger)
		if _, bindErr = m.Bind(doc, func(el *html.Node, c schemas.BehaviorConfig) { p.inst.SetBehavior(el, c) }); bindErr != nil {
			return
		}
		var fopts []crossframe.Option
		if id != "" {
			fopts = append(fopts, crossframe.WithID(id))
		}
		p.frame = crossframe.New(p.inst, cfg.CrossFrame(), logger, fopts...)
		p.frame.OnStateChange(p.printState)
	})
	if err == nil {
		err = bindErr
	}
	if err != nil {
		p.stop()
		return nil, err
	}
	return p, nil
}

func (p *framePeer) stop() {
	_ = p.loop.Do(context.Background(), func() {
		if p.frame != nil {
			p.frame.Dispose()
		}
		if p.inst != nil {
			p.inst.Dispose()
		}
	})
	p.loop.Stop()
}

func (p *framePeer) frameID() string {
	var id string
	_ = p.loop.Do(context.Background(), func() { id = p.frame.ID() })
	return id
}

// attach links c to the frame and unlinks it once the connection ends.
func (p *framePeer) attach(c *crossframe.WebSocketChannel) {
	p.loop.Post(func() { p.frame.AddLink(c) })
	go func() {
		<-c.Done()
		p.loop.Post(func() { p.frame.RemoveLink(c) })
		_ = c.Close()
	}()
}

func (p *framePeer) printState(d schemas.StateData) {
	var detail string
	switch d.State {
	case schemas.StateDeadWindow:
		detail = d.Dead
	case schemas.StateKeyboardNavigation:
		detail = fmt.Sprintf("%t", d.IsNavigatingWithKeyboard)
	case schemas.StateObserved:
		detail = formatDescriptor(d.Element)
		if d.Removed {
			detail += " removed"
		}
	default:
		detail = formatDescriptor(d.Element)
	}
	fmt.Fprintf(p.out, "state %s %s\n", d.State, detail)
}

func formatDescriptor(d *schemas.ElementDescriptor) string {
	if d == nil {
		return "-"
	}
	parts := []string{d.OwnerUID}
	if d.ID != "" {
		parts = append(parts, "#"+d.ID)
	} else if d.UID != "" {
		parts = append(parts, d.UID)
	}
	if d.ObservedName != "" {
		parts = append(parts, "("+d.ObservedName+")")
	}
	return strings.Join(parts, " ")
}

func (p *framePeer) focusXPath(ctx context.Context, xpath string) error {
	var ferr error
	err := p.loop.Do(ctx, func() {
		n, err := p.inst.Document().QueryOne(xpath)
		switch {
		case err != nil:
			ferr = err
		case n == nil:
			ferr = fmt.Errorf("%s matched nothing", xpath)
		case !p.inst.Focused.Focus(n, focus.FocusOptions{}):
			ferr = fmt.Errorf("%s refused focus", dom.Describe(n))
		}
	})
	if err != nil {
		return err
	}
	return ferr
}

// shell reads one command per line until in is exhausted or ctx is done.
func (p *framePeer) shell(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := p.exec(ctx, strings.Fields(line)); err != nil {
				fmt.Fprintf(p.out, "error: %v\n", err)
			}
		}
	}
}

func (p *framePeer) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	switch cmd, rest := args[0], args[1:]; cmd {
	case "focus":
		if len(rest) != 1 {
			return errors.New("usage: focus <xpath|#id>")
		}
		target := rest[0]
		if id, ok := strings.CutPrefix(target, "#"); ok {
			target = fmt.Sprintf("//*[@id='%s']", id)
		}
		return p.focusXPath(ctx, target)

	case "key":
		if len(rest) == 0 {
			return errors.New("usage: key <chord>...")
		}
		keys, err := replay.ParseKeys(strings.Join(rest, " "))
		if err != nil {
			return err
		}
		return p.loop.Do(ctx, func() {
			for _, k := range keys {
				handled := p.inst.HandleKeyDown(k)
				fmt.Fprintf(p.out, "key %s handled=%t focused=%s\n", k, handled, dom.Describe(p.inst.Focused.Element()))
			}
		})

	case "remote":
		if len(rest) != 2 {
			return errors.New("usage: remote <frame> <element id>")
		}
		d := schemas.ElementDescriptor{OwnerUID: rest[0], ID: rest[1]}
		return p.requestFocus(ctx, d)

	case "observed":
		if len(rest) != 1 {
			return errors.New("usage: observed <name>")
		}
		return p.requestFocus(ctx, schemas.ElementDescriptor{ObservedName: rest[0]})

	case "peers":
		return p.loop.Do(ctx, func() {
			fmt.Fprintf(p.out, "peers %s\n", strings.Join(p.frame.Peers(), " "))
		})

	case "ping":
		if len(rest) != 1 {
			return errors.New("usage: ping <frame>")
		}
		done := make(chan error, 1)
		if err := p.loop.Do(ctx, func() { p.frame.Ping(rest[0], func(err error) { done <- err }) }); err != nil {
			return err
		}
		if err := <-done; err != nil {
			return err
		}
		fmt.Fprintf(p.out, "pong %s\n", rest[0])
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func (p *framePeer) requestFocus(ctx context.Context, d schemas.ElementDescriptor) error {
	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	if err := p.loop.Do(ctx, func() {
		p.frame.FocusElement(d, 0, func(ok bool, err error) { done <- result{ok, err} })
	}); err != nil {
		return err
	}
	select {
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		fmt.Fprintf(p.out, "remote focus %s %t\n", formatDescriptor(&d), r.ok)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
