package health

import "net/http"

// Liveness indicates whether the service process is running. It performs no
// dependency checks and always responds 200 OK with "ALIVE".
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ALIVE"))
	}
}

// NoContent returns HTTP 204 with no body. Ideal for high-frequency probes
// that only care whether the process accepts connections.
func NoContent() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}
