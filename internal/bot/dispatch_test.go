package bot

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sourcegraph/conc"

	"github.com/Barahlush/housekeeper-tg-bot/internal/service"
	"github.com/Barahlush/housekeeper-tg-bot/internal/testutil"
)

const chatID int64 = -500

type message struct {
	text string
	kb   *tgbotapi.InlineKeyboardMarkup
}

type fakeTransport struct {
	mu         sync.Mutex
	nextID     int
	messages   map[int]message
	sent       []int
	deleted    map[int]bool
	answers    map[string]string
	animations []string
	// failEdits makes the next n edits fail.
	failEdits int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		nextID:   1000,
		messages: map[int]message{},
		deleted:  map[int]bool{},
		answers:  map[string]string{},
	}
}

func (f *fakeTransport) SendMessage(_ context.Context, _ int64, text string, kb *tgbotapi.InlineKeyboardMarkup, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.messages[f.nextID] = message{text: text, kb: kb}
	f.sent = append(f.sent, f.nextID)
	return f.nextID, nil
}

func (f *fakeTransport) EditMessage(_ context.Context, _ int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdits > 0 {
		f.failEdits--
		return fmt.Errorf("%w: edit message: too many requests", ErrTransport)
	}
	f.messages[messageID] = message{text: text, kb: kb}
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[messageID] = true
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.answers[callbackID]; dup {
		return fmt.Errorf("callback %s answered twice", callbackID)
	}
	f.answers[callbackID] = text
	return nil
}

func (f *fakeTransport) SendAnimation(_ context.Context, _ int64, url string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.animations = append(f.animations, url)
	return nil
}

func (f *fakeTransport) last() (int, message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.sent[len(f.sent)-1]
	return id, f.messages[id]
}

func (f *fakeTransport) message(id int) message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[id]
}

type stubFlavor struct{}

func (stubFlavor) TaskNote(context.Context, string) string {
	return "Важно помнить об этой задаче: не спеши"
}

func (stubFlavor) CelebrationURL(context.Context) string { return "https://gif/party" }

type harness struct {
	d         *Dispatcher
	transport *fakeTransport
	calls     int
	mu        sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := testutil.OpenStore(t)
	log := testutil.Logger()
	transport := newFakeTransport()
	d := NewDispatcher(DispatcherOptions{
		Tasks:        service.NewTaskService(store, service.NewSelector(rand.NewPCG(3, 4)), nil, log),
		Members:      service.NewMemberService(store, log),
		Digest:       service.NewDigestService(store),
		Flavor:       stubFlavor{},
		Transport:    transport,
		DeleteSource: true,
		Log:          log,
	})
	return &harness{d: d, transport: transport}
}

func user(id int64, username string) Sender {
	return Sender{ID: id, Username: username}
}

func (h *harness) command(from Sender, cmd string, messageID int) {
	h.d.HandleMessage(context.Background(), MessageEvent{ChatID: chatID, MessageID: messageID, From: from, Command: cmd})
}

func (h *harness) say(from Sender, text string, messageID int) {
	h.d.HandleMessage(context.Background(), MessageEvent{ChatID: chatID, MessageID: messageID, From: from, Text: text})
}

// press returns the toast shown to the presser.
func (h *harness) press(from Sender, messageID int, data string) string {
	h.mu.Lock()
	h.calls++
	id := fmt.Sprintf("cb-%d", h.calls)
	h.mu.Unlock()

	h.d.HandleButton(context.Background(), ButtonEvent{
		CallbackID:  id,
		ChatID:      chatID,
		MessageID:   messageID,
		MessageText: h.transport.message(messageID).text,
		From:        from,
		Data:        data,
	})

	h.transport.mu.Lock()
	defer h.transport.mu.Unlock()
	toast, ok := h.transport.answers[id]
	if !ok {
		return "<no answer>"
	}
	return toast
}

func (h *harness) setup(t *testing.T, members ...Sender) {
	t.Helper()
	h.command(members[0], "start", 1)
	for i, m := range members {
		h.command(m, "add_me", 2+i)
	}
}

// createTask posts text and returns the id of the task message.
func (h *harness) createTask(t *testing.T, from Sender, text string, sourceID int) int {
	t.Helper()
	before := len(h.transport.sent)
	h.say(from, text, sourceID)
	if len(h.transport.sent) <= before {
		t.Fatal("no task message was sent")
	}
	id := h.transport.sent[before]
	if !h.transport.deleted[sourceID] {
		t.Error("source message was not deleted")
	}
	return id
}

func TestDispatch_FullLifecycle(t *testing.T) {
	h := newHarness(t)
	anna := user(10, "anna")
	h.setup(t, anna)

	if _, msg := h.transport.last(); !strings.Contains(msg.text, "@anna теперь в списке участников") {
		t.Fatalf("registration notice = %q", msg.text)
	}

	taskMsg := h.createTask(t, anna, "вынести мусор", 50)
	msg := h.transport.message(taskMsg)
	for _, want := range []string{"<b>вынести мусор</b>", "не спеши", "@anna, возьмёшься"} {
		if !strings.Contains(msg.text, want) {
			t.Errorf("task message lacks %q:\n%s", want, msg.text)
		}
	}
	if !sameButtons(buttons(msg.kb), cbOfferAccept, cbOfferDecline, cbTaskDone, cbTaskCancel) {
		t.Errorf("buttons = %v", buttons(msg.kb))
	}

	if toast := h.press(anna, taskMsg, cbOfferDecline); toast != noAlternativeText {
		t.Errorf("decline toast = %q", toast)
	}
	msg = h.transport.message(taskMsg)
	if !strings.Contains(msg.text, "Других кандидатов нет") || !strings.Contains(msg.text, "@anna, возьмёшься") {
		t.Errorf("after lone decline:\n%s", msg.text)
	}
	if !sameButtons(buttons(msg.kb), cbOfferAccept, cbOfferDecline, cbTaskDone, cbTaskCancel) {
		t.Errorf("offer buttons lost after lone decline: %v", buttons(msg.kb))
	}

	if toast := h.press(anna, taskMsg, cbOfferAccept); toast != "" {
		t.Errorf("accept toast = %q", toast)
	}
	if msg := h.transport.message(taskMsg); !strings.Contains(msg.text, "⭐ @anna вызвался") {
		t.Errorf("after accept:\n%s", msg.text)
	}

	if toast := h.press(anna, taskMsg, cbTaskDone); toast != "" {
		t.Errorf("done toast = %q", toast)
	}
	msg = h.transport.message(taskMsg)
	if !strings.Contains(msg.text, "✅ @anna сделал задачу!") || msg.kb != nil {
		t.Errorf("after done: kb=%v\n%s", msg.kb, msg.text)
	}
	if len(h.transport.animations) != 1 {
		t.Errorf("animations = %v, want one celebration", h.transport.animations)
	}

	if toast := h.press(anna, taskMsg, cbTaskDone); toast != "Эту задачу уже обработали" {
		t.Errorf("second done toast = %q", toast)
	}
	if toast := h.press(anna, taskMsg, cbTaskCancel); toast != "Эту задачу уже обработали" {
		t.Errorf("cancel after done toast = %q", toast)
	}
}

func TestDispatch_DeclinePassesOffer(t *testing.T) {
	h := newHarness(t)
	anna, bob := user(10, "anna"), user(20, "bob")
	h.setup(t, anna, bob)

	taskMsg := h.createTask(t, anna, "помыть посуду", 50)
	first := "@anna"
	second := "@bob"
	if strings.Contains(h.transport.message(taskMsg).text, "@bob, возьмёшься") {
		first, second = second, first
	}
	presser := anna
	if first == "@bob" {
		presser = bob
	}

	if toast := h.press(presser, taskMsg, cbOfferDecline); toast != "" {
		t.Fatalf("decline toast = %q", toast)
	}
	if msg := h.transport.message(taskMsg); !strings.Contains(msg.text, second+", возьмёшься") {
		t.Errorf("offer should move to %s:\n%s", second, msg.text)
	}
}

func TestDispatch_Cancel(t *testing.T) {
	h := newHarness(t)
	anna := user(10, "anna")
	h.setup(t, anna)
	taskMsg := h.createTask(t, anna, "полить цветы", 50)

	if toast := h.press(anna, taskMsg, cbTaskCancel); toast != "Задача отменена" {
		t.Errorf("cancel toast = %q", toast)
	}
	if !h.transport.deleted[taskMsg] {
		t.Error("task message should be deleted")
	}
	if toast := h.press(anna, taskMsg, cbTaskDone); toast != "Задача не найдена" {
		t.Errorf("done after cancel toast = %q", toast)
	}
}

func TestDispatch_StrangerCannotCreateOrPress(t *testing.T) {
	h := newHarness(t)
	anna := user(10, "anna")
	h.setup(t, anna)
	taskMsg := h.createTask(t, anna, "пропылесосить", 50)

	stranger := user(99, "eve")
	sentBefore := len(h.transport.sent)
	h.say(stranger, "моя задача", 60)
	if len(h.transport.sent) != sentBefore+1 {
		t.Fatalf("stranger should get exactly one notice, sent %d", len(h.transport.sent)-sentBefore)
	}
	if _, msg := h.transport.last(); !strings.Contains(msg.text, "/add_me") {
		t.Errorf("notice = %q", msg.text)
	}
	if h.transport.deleted[60] {
		t.Error("rejected source message should stay")
	}

	if toast := h.press(stranger, taskMsg, cbTaskDone); !strings.Contains(toast, "/add_me") {
		t.Errorf("stranger toast = %q", toast)
	}
}

func TestDispatch_ChatNotStarted(t *testing.T) {
	h := newHarness(t)
	h.command(user(10, "anna"), "add_me", 1)
	if _, msg := h.transport.last(); !strings.Contains(msg.text, "/start") {
		t.Errorf("notice = %q", msg.text)
	}
}

func TestDispatch_DismissButtons(t *testing.T) {
	h := newHarness(t)
	anna := user(10, "anna")
	h.setup(t, anna)

	h.command(anna, "tasks", 5)
	noticeID, msg := h.transport.last()
	if !strings.Contains(msg.text, "нет открытых задач") {
		t.Fatalf("task list = %q", msg.text)
	}

	// The transport returns notices as plain text without markup.
	h.transport.mu.Lock()
	h.transport.messages[noticeID] = message{text: "Список задач\n\n" + dismissQuestion, kb: msg.kb}
	h.transport.mu.Unlock()

	h.press(anna, noticeID, cbDismissKeep)
	kept := h.transport.message(noticeID)
	if kept.text != "Список задач" || kept.kb != nil {
		t.Errorf("kept notice = %q kb=%v", kept.text, kept.kb)
	}

	h.command(anna, "help", 6)
	helpID, _ := h.transport.last()
	h.press(anna, helpID, cbDismissRemove)
	if !h.transport.deleted[helpID] {
		t.Error("notice should be deleted")
	}
}

func TestDispatch_ConcurrentDone(t *testing.T) {
	h := newHarness(t)
	anna, bob := user(10, "anna"), user(20, "bob")
	h.setup(t, anna, bob)
	taskMsg := h.createTask(t, anna, "разобрать сушилку", 50)

	var (
		wg     conc.WaitGroup
		toasts [2]string
	)
	for i, who := range []Sender{anna, bob} {
		wg.Go(func() {
			toasts[i] = h.press(who, taskMsg, cbTaskDone)
		})
	}
	wg.Wait()

	won := 0
	for _, toast := range toasts {
		switch toast {
		case "":
			won++
		case "Эту задачу уже обработали":
		default:
			t.Errorf("unexpected toast %q", toast)
		}
	}
	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1 (toasts %q)", won, toasts)
	}
	if msg := h.transport.message(taskMsg); !strings.Contains(msg.text, "сделал задачу!") {
		t.Errorf("final message:\n%s", msg.text)
	}
}

func TestDispatch_RenderFailureAfterDone(t *testing.T) {
	h := newHarness(t)
	anna := user(10, "anna")
	h.setup(t, anna)
	taskMsg := h.createTask(t, anna, "купить хлеб", 50)

	h.transport.mu.Lock()
	h.transport.failEdits = 1
	h.transport.mu.Unlock()

	if toast := h.press(anna, taskMsg, cbTaskDone); toast != failureText {
		t.Fatalf("toast after failed render = %q, want %q", toast, failureText)
	}
	if msg := h.transport.message(taskMsg); strings.Contains(msg.text, "сделал задачу") {
		t.Fatalf("message changed although the edit failed:\n%s", msg.text)
	}

	// The commit stands; pressing again shows the finished task.
	if toast := h.press(anna, taskMsg, cbTaskDone); toast != "Эту задачу уже обработали" {
		t.Errorf("second press toast = %q", toast)
	}
	if msg := h.transport.message(taskMsg); !strings.Contains(msg.text, "✅ @anna сделал задачу!") {
		t.Errorf("message was not refreshed:\n%s", msg.text)
	}
}

func TestDispatch_TaskPlaceholderRetry(t *testing.T) {
	h := newHarness(t)
	anna := user(10, "anna")
	h.setup(t, anna)

	h.transport.mu.Lock()
	h.transport.failEdits = 1
	h.transport.mu.Unlock()

	taskMsg := h.createTask(t, anna, "протереть пыль", 50)
	msg := h.transport.message(taskMsg)
	if !strings.Contains(msg.text, "<b>протереть пыль</b>") || msg.kb == nil {
		t.Errorf("task not rendered after one failed edit: kb=%v\n%s", msg.kb, msg.text)
	}
}

func TestDispatch_TaskPlaceholderRenderFails(t *testing.T) {
	h := newHarness(t)
	anna := user(10, "anna")
	h.setup(t, anna)

	h.transport.mu.Lock()
	h.transport.failEdits = 2
	h.transport.mu.Unlock()

	before := len(h.transport.sent)
	h.say(anna, "постирать шторы", 50)

	if got := len(h.transport.sent) - before; got != 2 {
		t.Fatalf("sent %d messages, want placeholder and notice", got)
	}
	if _, msg := h.transport.last(); !strings.HasPrefix(msg.text, failureText) {
		t.Errorf("notice = %q", msg.text)
	}
	if h.transport.deleted[50] {
		t.Error("source message should stay when the task could not be shown")
	}
}
