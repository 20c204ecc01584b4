package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/okian/runtest/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, "0.0.0.0:3000")
			convey.So(cfg.APIKey, convey.ShouldBeEmpty)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 4096)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.SelectionTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.MaxBodyBytes, convey.ShouldEqual, int64(10<<20))
			convey.So(cfg.RateLimit, convey.ShouldEqual, 0.0)
			convey.So(cfg.LogFormat, convey.ShouldEqual, config.LogFormatText)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When addr has only a port", func() {
			cfg.Addr = ":8080"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When addr has no port", func() {
			cfg.Addr = "localhost"
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "addr")
		})

		convey.Convey("When the port is out of range", func() {
			cfg.Addr = "0.0.0.0:70000"
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the log format is unknown", func() {
			cfg.LogFormat = "xml"
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the worker count is zero", func() {
			cfg.WorkerCount = 0
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "worker_count")
		})

		convey.Convey("When the shutdown timeout is zero", func() {
			cfg.ShutdownTimeoutMS = 0
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "shutdown_timeout_ms")
		})

		convey.Convey("When the max body size is zero", func() {
			cfg.MaxBodyBytes = 0
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the rate limit is negative", func() {
			cfg.RateLimit = -1
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})
	})
}
