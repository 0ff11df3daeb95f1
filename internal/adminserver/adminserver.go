// Package adminserver exposes the proxy's status/health HTTP surface,
// in the style of the teacher's scheduler HTTP API: gorilla/mux for
// routing, urfave/negroni for the middleware chain, and
// unrolled/render for JSON responses.
package adminserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/unrolled/render"
	"github.com/urfave/negroni"

	"github.com/pingcap-incubator/txnproxy/internal/clock"
)

// StatusProvider supplies the live values the /status endpoint
// reports, decoupling this package from the commit/grv pipelines.
type StatusProvider interface {
	CommittedVersion() int64
	MinKnownCommittedVersion() int64
	Locked() bool
	InFlightBatches() int
}

// New returns an http.Handler serving /healthz and /status.
func New(epoch *clock.EpochState, status StatusProvider) http.Handler {
	r := mux.NewRouter()
	rnd := render.New(render.Options{IndentJSON: true})

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		rnd.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		rnd.JSON(w, http.StatusOK, map[string]interface{}{
			"committed_version":           epoch.CommittedVersion(),
			"min_known_committed_version": epoch.MinKnownCommittedVersion(),
			"locked":                       epoch.Locked(),
			"in_flight_batches":            status.InFlightBatches(),
		})
	}).Methods(http.MethodGet)

	n := negroni.New(negroni.NewRecovery(), negroni.NewLogger())
	n.UseHandler(r)
	return n
}
