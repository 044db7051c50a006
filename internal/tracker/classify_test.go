package tracker

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code int
		want OutcomeKind
	}{
		{200, OutcomeSuccess},
		{400, OutcomeValidation},
		{403, OutcomeZeroJob},
		{404, OutcomeWorkerTimedOut},
		{500, OutcomeServer},
		{502, OutcomeServer},
		{201, OutcomeServer}, // только 200 считается успехом
		{204, OutcomeServer},
		{302, OutcomeServer},
		{401, OutcomeServer},
		{0, OutcomeServer},
		{-1, OutcomeServer},
		{999, OutcomeServer},
	}

	for _, tt := range tests {
		if got := Classify(tt.code); got != tt.want {
			t.Errorf("Classify(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestResponseErr(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		sentinel error
	}{
		{"validation", 400, ErrValidation},
		{"zero job", 403, ErrZeroJob},
		{"timed out", 404, ErrWorkerTimedOut},
		{"server", 500, ErrServer},
		{"unexpected", 418, ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Response{StatusCode: tt.code, Body: "nope"}).Err()
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("expected %v, got %v", tt.sentinel, err)
			}

			var sErr *StatusError
			if !errors.As(err, &sErr) {
				t.Fatalf("expected *StatusError, got %T", err)
			}
			if sErr.StatusCode != tt.code {
				t.Errorf("expected status %d, got %d", tt.code, sErr.StatusCode)
			}
		})
	}
}

func TestResponseErr_Success(t *testing.T) {
	if err := (&Response{StatusCode: 200}).Err(); err != nil {
		t.Errorf("expected nil for 200, got %v", err)
	}
}

func TestStatusError_Message(t *testing.T) {
	err := (&Response{StatusCode: 403, Body: "no jobs for stage m"}).Err()
	want := "tracker: no jobs for stage m (status 403)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
