package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
)

// ChromeOptions configures the headless Chrome process.
type ChromeOptions struct {
	ExecPath  string
	UserAgent string
}

// ChromeBrowser drives a headless Chrome through chromedp. The process is
// started on the first NewPage and shared by all pages until Close.
type ChromeBrowser struct {
	opts ChromeOptions

	mu            sync.Mutex
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	closed        bool
}

func NewChromeBrowser(opts ChromeOptions) *ChromeBrowser {
	return &ChromeBrowser{opts: opts}
}

func (b *ChromeBrowser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.opts.UserAgent))
	}
	if b.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ExecPath))
	}
	return opts
}

// ensureStarted must be called with b.mu held.
func (b *ChromeBrowser) ensureStarted() error {
	if b.closed {
		return errors.New("browser is closed")
	}
	if b.browserCtx != nil {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run launches the process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("start browser: %w", err)
	}

	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	b.allocCancel = allocCancel
	return nil
}

func (b *ChromeBrowser) NewPage(ctx context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureStarted(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	return &chromePage{tabCtx: tabCtx, cancel: cancel}, nil
}

// Close shuts the browser process down. It is safe to call more than once.
func (b *ChromeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.browserCtx == nil {
		return nil
	}
	b.browserCancel()
	b.allocCancel()
	b.browserCtx = nil
	return nil
}

type chromePage struct {
	tabCtx context.Context
	cancel context.CancelFunc
}

// bind derives a context for one chromedp.Run that carries the tab and
// honours the deadline and cancellation of ctx.
func (p *chromePage) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	if deadline, ok := ctx.Deadline(); ok {
		cancel()
		runCtx, cancel = context.WithDeadline(p.tabCtx, deadline)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
		}
		return err
	}
	return nil
}

const extractScript = `(() => {
  const meta = document.querySelector('meta[name="description"]');
  const body = document.body ? document.body.cloneNode(true) : null;
  if (body) {
    body.querySelectorAll('script, style, noscript, iframe').forEach((el) => el.remove());
  }
  const links = Array.from(document.querySelectorAll('a[href]'))
    .slice(0, %d)
    .map((a) => a.getAttribute('href'));
  return {
    title: document.title || '',
    description: meta ? (meta.getAttribute('content') || '') : '',
    text: body ? body.textContent.replace(/\s+/g, ' ').trim() : '',
    html: document.documentElement.outerHTML,
    links: links,
  };
})()`

func (p *chromePage) Extract(ctx context.Context, maxLinks int) (*Extracted, error) {
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	var ex Extracted
	if err := chromedp.Run(runCtx, chromedp.Evaluate(fmt.Sprintf(extractScript, maxLinks), &ex)); err != nil {
		return nil, err
	}
	return &ex, nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}
