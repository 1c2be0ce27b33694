package cook

import (
	"errors"
	"strings"
	"testing"
)

func TestSynchronizer_SkipsSilentlyWhenNotOpen(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{Err: errors.New("connection not open")}
	sync := NewSynchronizer(sender, nil)

	state := NewState(fiveStepRecipe())
	state.SetStep(2)

	// Must not panic or propagate; the next reconnect resends full context.
	sync.StepChanged(state.Snapshot())

	if got := len(sender.all()); got != 0 {
		t.Errorf("pushes = %d; want 0 while closed", got)
	}
}

func TestContextMessage_Content(t *testing.T) {
	t.Parallel()

	state := NewState(fiveStepRecipe())
	state.SetStep(3)
	state.startTimer(90)

	msg := ContextMessage(state.Snapshot())
	for _, want := range []string{
		"step 4 of 5",
		"Simmer, adding stock one ladle at a time.",
		"3:30",
		"90 seconds remaining",
		"nextStep",
		"previousStep",
		"goToStep",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("context message missing %q:\n%s", want, msg)
		}
	}
}

func TestContextMessage_OmitsAbsentExtras(t *testing.T) {
	t.Parallel()

	rec := fiveStepRecipe()
	rec.StepTimestamps = nil
	rec.VideoURL = ""
	state := NewState(rec)

	msg := ContextMessage(state.Snapshot())
	if strings.Contains(msg, "video") {
		t.Errorf("context for non-video recipe mentions video:\n%s", msg)
	}
	if strings.Contains(msg, "timer") {
		t.Errorf("context without a timer mentions one:\n%s", msg)
	}
}
