package swagger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/runtest/pkg/logger"
)

func TestSwaggerHandler(t *testing.T) {
	convey.Convey("Given a swagger handler", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()

		convey.Convey("When registering the swagger handler", func() {
			Register(ctx, mux)

			convey.Convey("Then it should handle /openapi.yaml route", func() {
				req := httptest.NewRequest("GET", "/openapi.yaml", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
				convey.So(w.Body.Len(), convey.ShouldBeGreaterThan, 0)
			})

			convey.Convey("And it should handle /api-docs route", func() {
				req := httptest.NewRequest("GET", "/api-docs", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "runtest API Docs")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "redoc-container")
			})

			convey.Convey("And the spec should describe /runtest", func() {
				req := httptest.NewRequest("GET", "/openapi.yaml", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Body.String(), convey.ShouldContainSubstring, "/runtest:")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "testResults")
			})

			convey.Convey("And other methods should be rejected", func() {
				req := httptest.NewRequest("POST", "/openapi.yaml", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

var errBrokenPipe = errors.New("broken pipe")

func (brokenWriter) Write([]byte) (int, error) { return 0, errBrokenPipe }

func TestSwaggerErrors(t *testing.T) {
	convey.Convey("Given a response writer that fails", t, func() {
		w := brokenWriter{httptest.NewRecorder()}

		convey.Convey("When serving a document", func() {
			err := serve(w, "application/yaml; charset=utf-8", OpenAPI)

			convey.Convey("Then the failure is reported as ErrServe with its cause", func() {
				convey.So(errors.Is(err, ErrServe), convey.ShouldBeTrue)
				convey.So(errors.Is(err, errBrokenPipe), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a registered route hits it", func() {
			convey.So(logger.Init(), convey.ShouldBeNil)
			mux := http.NewServeMux()
			Register(context.Background(), mux)
			req := httptest.NewRequest("GET", "/api-docs", http.NoBody)

			convey.Convey("Then the handler logs and does not panic", func() {
				convey.So(func() { mux.ServeHTTP(w, req) }, convey.ShouldNotPanic)
			})
		})
	})
}

func TestSwaggerHandlerWithNilMux(t *testing.T) {
	convey.Convey("Given a nil mux", t, func() {
		ctx := context.Background()

		convey.Convey("When registering the swagger handler", func() {
			convey.Convey("Then it should panic", func() {
				convey.So(func() {
					Register(ctx, nil)
				}, convey.ShouldPanic)
			})
		})
	})
}

func TestSwaggerHandlerWithNilContext(t *testing.T) {
	convey.Convey("Given a nil context", t, func() {
		mux := http.NewServeMux()

		convey.Convey("When registering the swagger handler", func() {
			convey.Convey("Then it should not panic", func() {
				convey.So(func() {
					Register(context.TODO(), mux)
				}, convey.ShouldNotPanic)
			})
		})
	})
}
