package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hushmetrics/hushmetrics/internals/ingest"
	"github.com/hushmetrics/hushmetrics/internals/store"
)

// snippetTemplate is the client tracking script, parameterized only by
// the tracking code. The fields it sends are the collection endpoint's
// contract; everything else about the script is deliberately minimal.
const snippetTemplate = `(function(){
  function send(){
    var q='site=%s'
      +'&path='+encodeURIComponent(location.pathname+location.search)
      +'&title='+encodeURIComponent(document.title)
      +'&hostname='+encodeURIComponent(location.hostname)
      +'&referrer='+encodeURIComponent(document.referrer);
    (new Image(1,1)).src='/collect?'+q;
  }
  if(document.readyState==='complete'){send();}
  else{window.addEventListener('load',send);}
})();
`

// noopSnippet is served for malformed and unknown tracking codes alike,
// so an unauthenticated caller cannot probe which codes exist.
const noopSnippet = "(function(){})();\n"

func serveSnippet(sites store.SiteStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.TrimSuffix(c.Param("code"), ".js")

		body := noopSnippet
		if ingest.ValidTrackingCode(code) {
			if _, err := sites.GetByTrackingCode(c.Request.Context(), code); err == nil {
				body = fmt.Sprintf(snippetTemplate, code)
			}
		}

		c.Header("Cache-Control", "public, max-age=3600")
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(body))
	}
}
