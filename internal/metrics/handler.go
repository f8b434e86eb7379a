package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func promhttpHandler() http.Handler {
	return promhttp.Handler()
}
