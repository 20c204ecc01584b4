package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/okian/runtest/internal/domain/model"
	"github.com/okian/runtest/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func ptr[T any](v T) *T { return &v }

func TestRunTestRequest_Validate(t *testing.T) {
	Convey("Given a runtest request", t, func() {
		Convey("When every field is present", func() {
			req := runTestRequest{
				Secret: ptr(""),
				Tests:  []itemRequest{{X: ptr(1.0), Y: ptr(2.0)}},
				Budget: ptr(0.0),
			}

			Convey("Then zero values still count as present", func() {
				So(req.Validate(), ShouldBeNil)
				So(req.items(), ShouldResemble, model.Items{{X: 1, Y: 2}})
			})
		})

		Convey("When tests is an empty list", func() {
			req := runTestRequest{Secret: ptr("k"), Tests: []itemRequest{}, Budget: ptr(1.0)}

			Convey("Then it is valid", func() {
				So(req.Validate(), ShouldBeNil)
				So(req.items(), ShouldBeEmpty)
			})
		})

		Convey("When budget is missing", func() {
			req := runTestRequest{Secret: ptr("k"), Tests: []itemRequest{}}

			Convey("Then the error names it", func() {
				err := req.Validate()
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "budget")
			})
		})

		Convey("When an item lacks x", func() {
			req := runTestRequest{
				Secret: ptr("k"),
				Tests:  []itemRequest{{X: ptr(1.0), Y: ptr(1.0)}, {Y: ptr(1.0)}},
				Budget: ptr(1.0),
			}

			Convey("Then the error points at the item", func() {
				err := req.Validate()
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "tests")
				So(err.Error(), ShouldContainSubstring, "x")
			})
		})

		Convey("When secret is missing", func() {
			req := runTestRequest{Tests: []itemRequest{}, Budget: ptr(1.0)}

			Convey("Then it reads as empty and fails validation", func() {
				So(req.secret(), ShouldEqual, "")
				So(req.Validate(), ShouldNotBeNil)
			})
		})
	})
}

func TestErrorWrapping(t *testing.T) {
	Convey("Given an operation error", t, func() {
		cause := errors.New("unexpected EOF")

		Convey("When wrapped with a kind", func() {
			err := WrapKind("api.run_test", ErrBadRequest, cause)

			Convey("Then kind and cause are both reachable", func() {
				So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
				So(errors.Is(err, cause), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "api.run_test: bad request: unexpected EOF")
			})
		})

		Convey("When the cause is nil", func() {
			So(WrapKind("op", ErrTimeout, nil).Error(), ShouldEqual, "op: request timeout")
			So(Wrap("op", nil), ShouldBeNil)
			So(errors.Is(NewKind("op", ErrBackpressure), ErrBackpressure), ShouldBeTrue)
		})
	})
}

func TestGetErrorType(t *testing.T) {
	Convey("Given HTTP status codes", t, func() {
		So(getErrorType(500), ShouldEqual, "server_error")
		So(getErrorType(429), ShouldEqual, "rate_limit")
		So(getErrorType(408), ShouldEqual, "timeout")
		So(getErrorType(404), ShouldEqual, "not_found")
		So(getErrorType(403), ShouldEqual, "client_error")
		So(getErrorSeverity(503), ShouldEqual, "high")
		So(getErrorSeverity(400), ShouldEqual, "medium")
		So(getErrorSeverity(200), ShouldEqual, "low")
	})
}

// recordingLogger keeps the fields of every Error call.
type recordingLogger struct {
	mu     sync.Mutex
	errors [][]logger.Field
}

func (l *recordingLogger) Info(context.Context, string, ...logger.Field)  {}
func (l *recordingLogger) Debug(context.Context, string, ...logger.Field) {}
func (l *recordingLogger) Warn(context.Context, string, ...logger.Field)  {}
func (l *recordingLogger) Fatal(context.Context, string, ...logger.Field) {}
func (l *recordingLogger) Named(string) logger.Logger                     { return l }

func (l *recordingLogger) Error(_ context.Context, _ string, fields ...logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fields)
}

func (l *recordingLogger) loggedError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, fields := range l.errors {
		for _, f := range fields {
			if err, ok := f.Value.(error); ok && f.Key == "error" {
				return err
			}
		}
	}
	return nil
}

func TestRunTestHandler_UnexpectedEvaluateError(t *testing.T) {
	Convey("Given a handler whose service fails unexpectedly", t, func() {
		rec := &recordingLogger{}
		h := NewRunTestHandler(nil, defaultMaxBodyBytes, rec)
		cause := errors.New("disk on fire")
		w := httptest.NewRecorder()

		h.writeEvaluateError(context.Background(), w, "api.run_test", cause)

		Convey("Then the client gets a generic 500", func() {
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldContainSubstring, "internal_error")
			So(w.Body.String(), ShouldNotContainSubstring, "disk on fire")
		})

		Convey("Then the log carries the cause tagged with the operation", func() {
			logged := rec.loggedError()
			So(errors.Is(logged, cause), ShouldBeTrue)
			So(logged.Error(), ShouldEqual, "api.run_test: disk on fire")
		})
	})
}
