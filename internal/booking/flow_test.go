package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtbook/internal/captcha"
	"courtbook/internal/config"
	"courtbook/internal/retry"
)

type kv struct {
	sel   string
	value string
}

// fakePage scripts the browser. Every operation succeeds unless a hook
// says otherwise, and everything is recorded for assertions.
type fakePage struct {
	mu sync.Mutex

	values map[string]string
	attrs  map[string]string
	texts  map[string]string
	loc    string

	navigations  []string
	clicks       []string
	indexedSel   []string
	indexedIdx   []int
	textClicks   []kv
	setValues    []kv
	selects      []kv
	sentKeys     []string
	captures     []string
	screens      []string
	dialogDepth  int
	visibleCalls map[string]int

	// loginMessage scripts the post-submit error label as a function of how
	// many times the login button has been clicked so far. A non-nil error
	// means the label is absent.
	loginMessage func(submits int) (string, error)
	// visible scripts WaitVisible per selector; call counts from 1.
	visible func(sel string, call int) error
}

func newFakePage() *fakePage {
	return &fakePage{
		values:       map[string]string{},
		attrs:        map[string]string{},
		texts:        map[string]string{},
		visibleCalls: map[string]int{},
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	return nil
}

func (p *fakePage) Click(ctx context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, sel)
	return nil
}

func (p *fakePage) ClickAndWait(ctx context.Context, sel string) error {
	return p.Click(ctx, sel)
}

func (p *fakePage) ClickIndexedAndWait(ctx context.Context, sel string, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indexedSel = append(p.indexedSel, sel)
	p.indexedIdx = append(p.indexedIdx, index)
	return nil
}

func (p *fakePage) ClickMatchingText(ctx context.Context, sel, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.textClicks = append(p.textClicks, kv{sel, text})
	return nil
}

func (p *fakePage) SetValue(ctx context.Context, sel, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[sel] = value
	p.setValues = append(p.setValues, kv{sel, value})
	return nil
}

func (p *fakePage) SelectOption(ctx context.Context, sel, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[sel] = value
	p.selects = append(p.selects, kv{sel, value})
	return nil
}

func (p *fakePage) SelectOptionAndWait(ctx context.Context, sel, value string) error {
	return p.SelectOption(ctx, sel, value)
}

func (p *fakePage) Value(ctx context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[sel], nil
}

func (p *fakePage) Text(ctx context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sel == selLoginMessage && p.loginMessage != nil {
		return p.loginMessage(p.countLocked(selLoginButton))
	}
	if v, ok := p.texts[sel]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrElementNotFound, sel)
}

func (p *fakePage) Attribute(ctx context.Context, sel, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.attrs[sel+"\x00"+name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s[%s]", ErrElementNotFound, sel, name)
}

func (p *fakePage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visibleCalls[sel]++
	if p.visible != nil {
		return p.visible(sel, p.visibleCalls[sel])
	}
	return nil
}

func (p *fakePage) CaptureElement(ctx context.Context, sel, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures = append(p.captures, path)
	return nil
}

func (p *fakePage) CaptureScreen(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screens = append(p.screens, path)
	return nil
}

func (p *fakePage) SendKeys(ctx context.Context, keys string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sentKeys = append(p.sentKeys, keys)
	return nil
}

func (p *fakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loc, nil
}

func (p *fakePage) AcceptDialogs(ctx context.Context) func() {
	p.mu.Lock()
	p.dialogDepth++
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.dialogDepth--
		p.mu.Unlock()
	}
}

func (p *fakePage) countLocked(sel string) int {
	n := 0
	for _, c := range p.clicks {
		if c == sel {
			n++
		}
	}
	return n
}

func (p *fakePage) countClicks(sel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countLocked(sel)
}

func (p *fakePage) valuesSet(sel string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, s := range p.setValues {
		if s.sel == sel {
			out = append(out, s.value)
		}
	}
	return out
}

// scriptedSolver hands out answers in order, repeating the last one.
type scriptedSolver struct {
	mu      sync.Mutex
	answers []string
	err     error
	calls   int
	paths   []string
}

func (s *scriptedSolver) Solve(ctx context.Context, imagePath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.paths = append(s.paths, imagePath)
	if s.err != nil {
		return "", s.err
	}
	i := s.calls - 1
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	return s.answers[i], nil
}

func newTestFlow(t *testing.T, p *fakePage, arith, vision captcha.Solver, mut func(*config.Run)) *Flow {
	t.Helper()
	cfg := config.Run{
		Username:        "member01",
		Password:        "hunter2",
		BookingDate:     "15/03/2025",
		Day:             15,
		Court:           "7",
		TimeSlot:        "20",
		RunID:           "testrun",
		BaseURL:         "https://booking.example/",
		ScratchDir:      t.TempDir(),
		GameID:          "20",
		CategoryID:      "201",
		UserType:        "LM",
		Organization:    "YSC",
		MaxLoginCycles:  25,
		ConfirmAttempts: 4,
		SlotPollTimeout: time.Millisecond,
	}
	if mut != nil {
		mut(&cfg)
	}
	f := NewFlow(p, arith, vision, cfg, zerolog.Nop())
	f.KeyDelay = 0
	f.Cooldown = 0
	f.ModalWait = 0
	f.StepRetry = retry.Policy{Attempts: 3}
	f.ErrorPoll = retry.Policy{Attempts: 2}
	return f
}

func TestLoginThirdCycleSucceeds(t *testing.T) {
	page := newFakePage()
	page.loginMessage = func(submits int) (string, error) {
		if submits <= 2 {
			return "Invalid CAPTCHA code.", nil
		}
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, selLoginMessage)
	}
	arith := &scriptedSolver{answers: []string{"12", "13", "14"}}
	f := newTestFlow(t, page, arith, nil, nil)

	require.NoError(t, f.login(context.Background()))

	assert.Equal(t, 3, page.countClicks(selLoginButton), "one submit per cycle")
	assert.Equal(t, 3, arith.calls, "fresh challenge solved every cycle")

	seen := map[string]bool{}
	for _, p := range arith.paths {
		seen[p] = true
	}
	assert.Len(t, seen, 3, "a challenge image is never rescored")

	// Clear-then-fill per cycle, with the cycle's own answer.
	assert.Equal(t, []string{"", "12", "", "13", "", "14"}, page.valuesSet(selCaptchaAnswer))

	// Credentials are filled once and survive the rejected cycles.
	assert.Equal(t, []string{"member01"}, page.valuesSet(selUsername))
	assert.Equal(t, []string{"hunter2"}, page.valuesSet(selPassword))
}

func TestLoginExhaustsBoundedCycles(t *testing.T) {
	page := newFakePage()
	page.loginMessage = func(int) (string, error) { return "Invalid CAPTCHA code.", nil }
	arith := &scriptedSolver{answers: []string{"40"}}
	f := newTestFlow(t, page, arith, nil, func(c *config.Run) { c.MaxLoginCycles = 2 })

	err := f.login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoginExhausted)
	assert.ErrorIs(t, err, ErrCaptchaRejected)
	assert.Equal(t, 2, page.countClicks(selLoginButton))
}

func TestLoginUnreadableCaptchaIsFatal(t *testing.T) {
	page := newFakePage()
	arith := &scriptedSolver{err: fmt.Errorf("%w: found 1 number(s)", captcha.ErrDetection)}
	f := newTestFlow(t, page, arith, nil, nil)

	err := f.login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, captcha.ErrDetection)
	assert.Equal(t, 3, arith.calls, "each solve attempt captures and scores once")
	assert.Zero(t, page.countClicks(selLoginButton), "no submit without an answer")
}

func TestAcquireCourtThirdSearchFindsSlot(t *testing.T) {
	page := newFakePage()
	slotSel := courtSelector("20")
	page.visible = func(sel string, call int) error {
		if sel == slotSel && call <= 2 {
			return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
		}
		return nil
	}
	f := newTestFlow(t, page, &scriptedSolver{}, nil, nil)

	require.NoError(t, f.acquireCourt(context.Background()))

	assert.Equal(t, 3, page.countClicks(selSearch), "one search per polling iteration")
	assert.Contains(t, page.selects, kv{slotSel, "7 "}, "single-digit court is space-padded")
	assert.Equal(t, 1, page.countClicks(editLink("20")))
}

func TestAcquireCourtStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newTestFlow(t, newFakePage(), &scriptedSolver{}, nil, nil)

	err := f.acquireCourt(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfirmUsesURLEmbeddedAnswer(t *testing.T) {
	page := newFakePage()
	page.attrs[selConfirmCaptchaImage+"\x00src"] = "mcaptcha.aspx?txt=ab-12&id=9"
	page.visible = func(sel string, call int) error {
		return fmt.Errorf("%w: %s", ErrElementNotFound, sel) // no error modal
	}
	vision := &scriptedSolver{answers: []string{"never"}}
	f := newTestFlow(t, page, &scriptedSolver{}, vision, nil)

	require.NoError(t, f.confirm(context.Background()))

	assert.Equal(t, []string{"ab12"}, page.valuesSet(selConfirmAnswer))
	assert.Equal(t, 1, page.countClicks(selSave))
	assert.Equal(t, []string{"\t", "\t", "\r"}, page.sentKeys)
	assert.Zero(t, vision.calls, "embedded answer skips the vision solver")

	page.mu.Lock()
	defer page.mu.Unlock()
	assert.Zero(t, page.dialogDepth, "dialog auto-accept released after the stage")
}

func TestConfirmRecoversAfterWrongCodeModals(t *testing.T) {
	page := newFakePage()
	page.attrs[selConfirmCaptchaImage+"\x00src"] = "mcaptcha.aspx" // nothing embedded
	page.visible = func(sel string, call int) error {
		if sel == selErrorModal && call <= 3 {
			return nil // modal present on the first three attempts
		}
		return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	vision := &scriptedSolver{answers: []string{"Z1", "Z2", "Z3", "Z4"}}
	f := newTestFlow(t, page, &scriptedSolver{}, vision, nil)

	require.NoError(t, f.confirm(context.Background()))

	assert.Equal(t, 4, page.countClicks(selSave), "initial save plus one re-save per modal")
	assert.Equal(t, 4, vision.calls)
	assert.Equal(t, []string{"Z1", "", "Z2", "", "Z3", "", "Z4"}, page.valuesSet(selConfirmAnswer),
		"field cleared before every re-solved answer")
	assert.Len(t, page.sentKeys, 21, "dialog keys plus modal-dismiss keys each round")
}

func TestConfirmExhaustsAttempts(t *testing.T) {
	page := newFakePage()
	page.attrs[selConfirmCaptchaImage+"\x00src"] = "mcaptcha.aspx?txt=AB12"
	page.visible = func(sel string, call int) error {
		if sel == selErrorModal {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	vision := &scriptedSolver{answers: []string{"Z1"}}
	f := newTestFlow(t, page, &scriptedSolver{}, vision, func(c *config.Run) { c.ConfirmAttempts = 3 })

	err := f.confirm(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfirmExhausted)
	assert.Equal(t, 3, page.countClicks(selSave))
	assert.Equal(t, 2, vision.calls, "the final attempt does not redrive")
}

func TestConfirmFallsBackToPlaceholder(t *testing.T) {
	t.Run("no vision solver", func(t *testing.T) {
		page := newFakePage()
		page.visible = func(sel string, call int) error {
			return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
		}
		f := newTestFlow(t, page, &scriptedSolver{}, nil, nil)

		require.NoError(t, f.confirm(context.Background()))
		assert.Equal(t, []string{confirmFallbackAnswer}, page.valuesSet(selConfirmAnswer))
	})

	t.Run("vision keeps failing", func(t *testing.T) {
		page := newFakePage()
		page.visible = func(sel string, call int) error {
			return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
		}
		vision := &scriptedSolver{err: errors.New("quota exceeded")}
		f := newTestFlow(t, page, &scriptedSolver{}, vision, nil)

		require.NoError(t, f.confirm(context.Background()))
		assert.Equal(t, confirmSolveRetries, vision.calls)
		assert.Equal(t, []string{confirmFallbackAnswer}, page.valuesSet(selConfirmAnswer))
	})
}

func TestEmbeddedAnswer(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"answer leaked", "mcaptcha.aspx?txt=AB12", "AB12"},
		{"answer needs sanitizing", "mcaptcha.aspx?txt=+ab-12%21", "ab12"},
		{"no txt parameter", "mcaptcha.aspx?id=9", ""},
		{"empty src", "", ""},
		{"unparseable src", "://nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, embeddedAnswer(tt.src))
		})
	}
}

func TestPaddedCourt(t *testing.T) {
	assert.Equal(t, "7 ", paddedCourt("7"))
	assert.Equal(t, "13", paddedCourt("13"))
}

func TestRunEndToEnd(t *testing.T) {
	page := newFakePage()
	page.loc = "https://pay.example/checkout?order=991"
	page.attrs[selConfirmCaptchaImage+"\x00src"] = "mcaptcha.aspx?txt=XY77"
	page.visible = func(sel string, call int) error {
		if sel == selErrorModal {
			return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
		}
		return nil // slot offered on the first search
	}
	arith := &scriptedSolver{answers: []string{"11"}}
	f := newTestFlow(t, page, arith, nil, nil)

	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/checkout?order=991", res.PaymentURL)

	page.mu.Lock()
	defer page.mu.Unlock()
	assert.Equal(t, []string{"https://booking.example/"}, page.navigations)
	assert.Equal(t, []string{selMenuLinks}, page.indexedSel)
	assert.Equal(t, []int{bookingMenuIndex}, page.indexedIdx)
	assert.Contains(t, page.textClicks, kv{selEnabledDays, "15"})
	assert.Contains(t, page.selects, kv{selGames, "20"})
	assert.Contains(t, page.selects, kv{selGameCategory, "201"})
	assert.Contains(t, page.selects, kv{courtSelector("20"), "7 "})
	assert.Equal(t, 1, page.countLocked(selTermsCheckbox))
	assert.Equal(t, 1, page.countLocked(selTermsConfirm))
}
