package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/padmon/internal/adapters/auth"
	"github.com/okian/padmon/internal/adapters/http/api"
	service "github.com/okian/padmon/internal/app"
	"github.com/okian/padmon/internal/config"
	"github.com/okian/padmon/internal/domain/analytics"
	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/internal/domain/profile"
	"github.com/okian/padmon/internal/domain/risk"
	"github.com/okian/padmon/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

type fixture struct {
	svc *service.Service
	mux *http.ServeMux
}

func newFixture(t *testing.T, start bool) *fixture {
	t.Helper()
	cfg := config.New()
	cfg.SimulationAutostart = false
	cfg.SimulationInterval = time.Hour
	cfg.BcryptCost = bcrypt.MinCost
	cfg.WorkerCount = 2

	svc := service.New(service.WithConfig(cfg), service.WithLogger(logger.Nop()))
	if start {
		if err := svc.Start(context.Background()); err != nil {
			t.Fatalf("start service: %v", err)
		}
		t.Cleanup(func() { _ = svc.Stop(context.Background()) })
	}
	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	return &fixture{svc: svc, mux: mux}
}

func (f *fixture) do(method, target, token, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) signUp(email string) string {
	rec := f.do(http.MethodPost, "/auth/signup", "", `{"email":"`+email+`","password":"secret1","displayName":"Pat"}`)
	var sess auth.Session
	_ = json.Unmarshal(rec.Body.Bytes(), &sess)
	return sess.Token
}

func (f *fixture) waitForTotal(n int) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := f.svc.Readings(context.Background(), 0)
		if err == nil && snap.Total >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func decodeError(rec *httptest.ResponseRecorder) map[string]string {
	out := map[string]string{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}

func TestAuthRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		f := newFixture(t, true)

		Convey("When a user signs up", func() {
			rec := f.do(http.MethodPost, "/auth/signup", "", `{"email":"Pat@Example.com","password":"secret1","displayName":"Pat"}`)
			So(rec.Code, ShouldEqual, http.StatusCreated)
			var sess auth.Session
			So(json.Unmarshal(rec.Body.Bytes(), &sess), ShouldBeNil)
			So(sess.Token, ShouldNotBeEmpty)
			So(sess.Email, ShouldEqual, "pat@example.com")

			Convey("Then the session is visible with its token", func() {
				rec := f.do(http.MethodGet, "/auth/session", sess.Token, "")
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "pat@example.com")
			})

			Convey("Then signing up again conflicts", func() {
				rec := f.do(http.MethodPost, "/auth/signup", "", `{"email":"pat@example.com","password":"secret1"}`)
				So(rec.Code, ShouldEqual, http.StatusConflict)
				So(decodeError(rec)["code"], ShouldEqual, "email_in_use")
			})

			Convey("Then a wrong password is rejected", func() {
				rec := f.do(http.MethodPost, "/auth/signin", "", `{"email":"pat@example.com","password":"nope-nope"}`)
				So(rec.Code, ShouldEqual, http.StatusUnauthorized)
			})

			Convey("Then signing in returns a new session", func() {
				rec := f.do(http.MethodPost, "/auth/signin", "", `{"email":"pat@example.com","password":"secret1"}`)
				So(rec.Code, ShouldEqual, http.StatusOK)
			})

			Convey("Then signing out ends the session", func() {
				rec := f.do(http.MethodPost, "/auth/signout", sess.Token, "")
				So(rec.Code, ShouldEqual, http.StatusNoContent)
				rec = f.do(http.MethodGet, "/auth/session", sess.Token, "")
				So(rec.Code, ShouldEqual, http.StatusUnauthorized)
			})
		})

		Convey("When the password is too short", func() {
			rec := f.do(http.MethodPost, "/auth/signup", "", `{"email":"a@b.co","password":"123"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the body is not JSON", func() {
			rec := f.do(http.MethodPost, "/auth/signup", "", `{`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(rec)["code"], ShouldEqual, "bad_request")
		})

		Convey("When a protected route is called without a token", func() {
			rec := f.do(http.MethodGet, "/auth/session", "", "")
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When the wrong method is used", func() {
			rec := f.do(http.MethodGet, "/auth/signup", "", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestReadingsRoutes(t *testing.T) {
	Convey("Given a running API and a signed in user", t, func() {
		f := newFixture(t, true)
		token := f.signUp("pat@example.com")

		Convey("When there are no readings", func() {
			rec := f.do(http.MethodGet, "/readings", "", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var resp api.ReadingsResponse
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Readings, ShouldBeEmpty)
			So(resp.Latest, ShouldBeNil)
			So(rec.Body.String(), ShouldContainSubstring, `"readings":[]`)
		})

		Convey("When posting without a token", func() {
			rec := f.do(http.MethodPost, "/readings", "", `{"bloodFlow":80,"temperature":38.5,"pressure":150}`)
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When a measurement is posted", func() {
			rec := f.do(http.MethodPost, "/readings", token, `{"readingId":"r-1","bloodFlow":80,"temperature":38.5,"pressure":150}`)
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			var ing api.IngestResponse
			So(json.Unmarshal(rec.Body.Bytes(), &ing), ShouldBeNil)
			So(ing.Status, ShouldEqual, "accepted")
			So(ing.Reading.PadRiskScore, ShouldEqual, 19)

			Convey("Then it is listed with an assessment", func() {
				f.waitForTotal(1)
				rec := f.do(http.MethodGet, "/readings?limit=5", "", "")
				So(rec.Code, ShouldEqual, http.StatusOK)
				var resp api.ReadingsResponse
				So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.Total, ShouldEqual, 1)
				So(resp.Latest, ShouldNotBeNil)
				So(resp.Latest.ID, ShouldNotBeEmpty)
				So(resp.Assessment.Level, ShouldEqual, risk.LevelLow)
				So(resp.Assessment.Sensors[risk.SensorBloodFlow], ShouldEqual, risk.StatusNormal)
				So(resp.Assessment.Sensors[risk.SensorTemperature], ShouldEqual, risk.StatusWarning)
				So(resp.Assessment.Sensors[risk.SensorPressure], ShouldEqual, risk.StatusCritical)
			})

			Convey("Then posting the same reading id is a duplicate", func() {
				rec := f.do(http.MethodPost, "/readings", token, `{"readingId":"r-1","bloodFlow":80,"temperature":38.5,"pressure":150}`)
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "duplicate")
			})
		})

		Convey("When a measurement is out of range", func() {
			rec := f.do(http.MethodPost, "/readings", token, `{"bloodFlow":-1,"temperature":36,"pressure":100}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the limit is not a number", func() {
			rec := f.do(http.MethodGet, "/readings?limit=abc", "", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When an unsupported method is used", func() {
			rec := f.do(http.MethodDelete, "/readings", token, "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given an API whose service is not started", t, func() {
		f := newFixture(t, false)

		Convey("Then reads are unavailable", func() {
			rec := f.do(http.MethodGet, "/readings", "", "")
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeError(rec)["code"], ShouldEqual, "unavailable")
		})
	})
}

func TestSimulationRoutes(t *testing.T) {
	Convey("Given a running API and a signed in user", t, func() {
		f := newFixture(t, true)
		token := f.signUp("pat@example.com")

		Convey("Then the simulator starts stopped", func() {
			rec := f.do(http.MethodGet, "/simulation", "", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var resp api.SimulationResponse
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Running, ShouldBeFalse)
			So(resp.IntervalMs, ShouldEqual, time.Hour.Milliseconds())
		})

		Convey("When it is started twice and stopped", func() {
			var first, second, stop api.SimulationResponse
			rec := f.do(http.MethodPost, "/simulation/start", token, "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(json.Unmarshal(rec.Body.Bytes(), &first), ShouldBeNil)
			rec = f.do(http.MethodPost, "/simulation/start", token, "")
			So(json.Unmarshal(rec.Body.Bytes(), &second), ShouldBeNil)
			rec = f.do(http.MethodPost, "/simulation/stop", token, "")
			So(json.Unmarshal(rec.Body.Bytes(), &stop), ShouldBeNil)

			Convey("Then only the first start changes state", func() {
				So(first.Running, ShouldBeTrue)
				So(first.Changed, ShouldBeTrue)
				So(first.StartedAt, ShouldNotBeEmpty)
				So(second.Changed, ShouldBeFalse)
				So(stop.Running, ShouldBeFalse)
				So(stop.Changed, ShouldBeTrue)
			})
		})

		Convey("When started without a token", func() {
			rec := f.do(http.MethodPost, "/simulation/start", "", "")
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestAnalyticsAndExportRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		f := newFixture(t, true)

		Convey("When there is nothing to export", func() {
			rec := f.do(http.MethodGet, "/export?format=csv", "", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(rec)["code"], ShouldEqual, "no_data")
		})

		Convey("When readings exist", func() {
			ctx := context.Background()
			for _, bf := range []float64{90, 60, 40} {
				_, err := f.svc.Ingest(ctx, model.Measurement{BloodFlow: bf, Temperature: 36.5, Pressure: 110})
				So(err, ShouldBeNil)
			}
			f.waitForTotal(3)

			Convey("Then analytics summarise them", func() {
				rec := f.do(http.MethodGet, "/analytics?range=day", "", "")
				So(rec.Code, ShouldEqual, http.StatusOK)
				var stats analytics.Stats
				So(json.Unmarshal(rec.Body.Bytes(), &stats), ShouldBeNil)
				So(stats.Count, ShouldEqual, 3)
				So(stats.Range, ShouldEqual, analytics.RangeDay)
				So(stats.MinRiskScore, ShouldBeLessThan, stats.MaxRiskScore)
			})

			Convey("Then an unknown range is rejected", func() {
				rec := f.do(http.MethodGet, "/analytics?range=year", "", "")
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then a CSV export is downloadable", func() {
				rec := f.do(http.MethodGet, "/export?format=csv&fields=bloodFlow,padRiskScore", "", "")
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldEqual, "text/csv")
				So(rec.Header().Get("Content-Disposition"), ShouldContainSubstring, "pad_data_export_")
				lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
				So(lines, ShouldHaveLength, 4)
				So(lines[0], ShouldStartWith, "timestamp")
			})

			Convey("Then an XLSX export is a zip archive", func() {
				rec := f.do(http.MethodGet, "/export?format=xlsx", "", "")
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldStartWith, "PK")
			})

			Convey("Then unknown formats and fields are rejected", func() {
				So(f.do(http.MethodGet, "/export?format=pdf", "", "").Code, ShouldEqual, http.StatusBadRequest)
				So(f.do(http.MethodGet, "/export?fields=heartRate", "", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestDoctorAndNotificationRoutes(t *testing.T) {
	Convey("Given a running API and a signed in user", t, func() {
		f := newFixture(t, true)
		token := f.signUp("pat@example.com")

		Convey("When a doctor is invited", func() {
			rec := f.do(http.MethodPost, "/doctor/connect", token, `{"doctorEmail":"Dr@Clinic.org","message":"hi"}`)
			So(rec.Code, ShouldEqual, http.StatusCreated)

			Convey("Then the invitation is listed", func() {
				rec := f.do(http.MethodGet, "/doctor/connect", token, "")
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "dr@clinic.org")
			})

			Convey("Then a notification records it", func() {
				rec := f.do(http.MethodGet, "/notifications?limit=1", "", "")
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "Connection Request Sent")
			})
		})

		Convey("When the doctor email is missing", func() {
			rec := f.do(http.MethodPost, "/doctor/connect", token, `{"doctorEmail":"  "}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the doctor email is malformed", func() {
			rec := f.do(http.MethodPost, "/doctor/connect", token, `{"doctorEmail":"not-an-email"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestProfileRoutes(t *testing.T) {
	Convey("Given a running API and a signed in user", t, func() {
		f := newFixture(t, true)
		token := f.signUp("pat@example.com")

		Convey("When the profile is read before any update", func() {
			rec := f.do(http.MethodGet, "/profile", token, "")

			Convey("Then it is seeded from the account", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				var p profile.Profile
				So(json.Unmarshal(rec.Body.Bytes(), &p), ShouldBeNil)
				So(p.Email, ShouldEqual, "pat@example.com")
				So(p.Personal.Name, ShouldEqual, "Pat")
			})
		})

		Convey("When both sections are updated", func() {
			rec := f.do(http.MethodPut, "/profile/personal", token, `{"name":"Pat Doe","phone":"555-0100"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			rec = f.do(http.MethodPut, "/profile/medical", token, `{"age":"64","allergies":"penicillin"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)

			Convey("Then the profile holds both", func() {
				var p profile.Profile
				So(json.Unmarshal(f.do(http.MethodGet, "/profile", token, "").Body.Bytes(), &p), ShouldBeNil)
				So(p.Personal.Phone, ShouldEqual, "555-0100")
				So(p.Medical.Allergies, ShouldEqual, "penicillin")
			})

			Convey("Then each update was announced", func() {
				rec := f.do(http.MethodGet, "/notifications?limit=2", "", "")
				So(rec.Body.String(), ShouldContainSubstring, "Profile Updated")
				So(rec.Body.String(), ShouldContainSubstring, "Medical Information Updated")
			})
		})

		Convey("When medical information is invalid", func() {
			rec := f.do(http.MethodPut, "/profile/medical", token, `{"age":"sixty"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(rec)["code"], ShouldEqual, "bad_request")
		})

		Convey("When the body has unknown fields", func() {
			rec := f.do(http.MethodPut, "/profile/personal", token, `{"email":"other@example.com"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the wrong method is used", func() {
			So(f.do(http.MethodPost, "/profile/personal", token, `{}`).Code, ShouldEqual, http.StatusNotFound)
			So(f.do(http.MethodPut, "/profile", token, `{}`).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When no token is sent", func() {
			So(f.do(http.MethodGet, "/profile", "", "").Code, ShouldEqual, http.StatusUnauthorized)
			So(f.do(http.MethodPut, "/profile/medical", "", `{"age":"64"}`).Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given a running API", t, func() {
		f := newFixture(t, true)

		Convey("Then /healthz answers ok", func() {
			rec := f.do(http.MethodGet, "/healthz", "", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then /metrics exposes the registry", func() {
			rec := f.do(http.MethodGet, "/metrics", "", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "padmon_")
		})

		Convey("Then /stats reports the service", func() {
			rec := f.do(http.MethodGet, "/stats", "", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			So(json.Unmarshal(rec.Body.Bytes(), &stats), ShouldBeNil)
			So(stats["started"], ShouldEqual, true)
		})
	})
}

func TestBearerToken(t *testing.T) {
	Convey("Given authorization headers", t, func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		Convey("Then bearer tokens are extracted", func() {
			req.Header.Set("Authorization", "bearer abc ")
			So(api.BearerToken(req), ShouldEqual, "abc")
		})

		Convey("Then other schemes are ignored", func() {
			req.Header.Set("Authorization", "Basic abc")
			So(api.BearerToken(req), ShouldEqual, "")
		})
	})
}
