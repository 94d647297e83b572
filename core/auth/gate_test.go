package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

type scriptedPrompter struct {
	answers []string
	err     error
	calls   []int // remaining, per call
}

func (p *scriptedPrompter) ReadSecret(attempt, remaining int) (string, error) {
	p.calls = append(p.calls, remaining)
	if p.err != nil {
		return "", p.err
	}
	if attempt > len(p.answers) {
		return "", errors.New("no more answers")
	}
	return p.answers[attempt-1], nil
}

func TestGate_Authenticate(t *testing.T) {
	errTTY := errors.New("tty closed")

	tests := []struct {
		name      string
		secret    string
		answers   []string
		readErr   error
		want      bool
		wantErr   error
		wantCalls []int
		wantFails []int
	}{
		{name: "first try", secret: "s3cret", answers: []string{"s3cret"}, want: true, wantCalls: []int{3}},
		{name: "trailing newline", secret: "s3cret", answers: []string{"s3cret\n"}, want: true, wantCalls: []int{3}},
		{
			name: "third try", secret: "s3cret", answers: []string{"a", "b", "s3cret"}, want: true,
			wantCalls: []int{3, 2, 1}, wantFails: []int{2, 1},
		},
		{
			name: "three wrong answers", secret: "s3cret", answers: []string{"a", "b", "c", "s3cret"},
			wantCalls: []int{3, 2, 1}, wantFails: []int{2, 1, 0},
		},
		{name: "case sensitive", secret: "s3cret", answers: []string{"S3CRET", "S3cret", "s3CRET"}, wantCalls: []int{3, 2, 1}, wantFails: []int{2, 1, 0}},
		{name: "read error aborts", secret: "s3cret", readErr: errTTY, wantErr: errTTY, wantCalls: []int{3}},
		{name: "no secret", wantErr: ErrNoSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fails []int
			g := NewGate(tt.secret, DefaultMaxAttempts)
			g.OnFailure = func(remaining int) { fails = append(fails, remaining) }
			p := &scriptedPrompter{answers: tt.answers, err: tt.readErr}

			got, err := g.Authenticate(p)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, p.calls)
			assert.Equal(t, tt.wantFails, fails)
		})
	}
}

func TestGate_Check(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		secret string
		answer string
		want   bool
	}{
		{name: "plain match", secret: "hunter2", answer: "hunter2", want: true},
		{name: "plain mismatch", secret: "hunter2", answer: "hunter3"},
		{name: "plain prefix", secret: "hunter2", answer: "hunter"},
		{name: "bcrypt match", secret: string(hash), answer: "hunter2", want: true},
		{name: "bcrypt mismatch", secret: string(hash), answer: "hunter3"},
		{name: "bcrypt hash typed as answer", secret: string(hash), answer: string(hash)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewGate(tt.secret, 1).Check(tt.answer); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrompterFunc(t *testing.T) {
	g := NewGate("pw", 0)
	var attempts int
	ok, err := g.Authenticate(PrompterFunc(func(attempt, remaining int) (string, error) {
		attempts = attempt
		return "pw", nil
	}))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, attempts)
}
