package tracker

import "net/http"

// OutcomeKind определяет результат классификации ответа трекера.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeValidation
	OutcomeZeroJob
	OutcomeWorkerTimedOut
	OutcomeServer
)

// String возвращает имя исхода, используется как label метрик.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeValidation:
		return "validation"
	case OutcomeZeroJob:
		return "zero_job"
	case OutcomeWorkerTimedOut:
		return "worker_timed_out"
	default:
		return "server"
	}
}

func (k OutcomeKind) sentinel() error {
	switch k {
	case OutcomeSuccess:
		return nil
	case OutcomeValidation:
		return ErrValidation
	case OutcomeZeroJob:
		return ErrZeroJob
	case OutcomeWorkerTimedOut:
		return ErrWorkerTimedOut
	default:
		return ErrServer
	}
}

// Classify отображает HTTP-код ответа в OutcomeKind.
// Любой код вне {200, 400, 403, 404} считается OutcomeServer.
func Classify(statusCode int) OutcomeKind {
	switch statusCode {
	case http.StatusOK:
		return OutcomeSuccess
	case http.StatusBadRequest:
		return OutcomeValidation
	case http.StatusForbidden:
		return OutcomeZeroJob
	case http.StatusNotFound:
		return OutcomeWorkerTimedOut
	default:
		return OutcomeServer
	}
}

// Err возвращает *StatusError для неуспешного ответа или nil для 200.
func (r *Response) Err() error {
	kind := Classify(r.StatusCode)
	if kind == OutcomeSuccess {
		return nil
	}
	return &StatusError{Kind: kind, StatusCode: r.StatusCode, Body: r.Body}
}
