package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type iceServer struct {
	URLs       any    `json:"urls"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// turnCredentials proxies the TURN provider so its API key never reaches
// the browser, and prepends the static STUN servers. With no provider
// configured the static list alone is returned.
func (a *API) turnCredentials(c *gin.Context) {
	servers := make([]iceServer, 0, len(a.turn.STUNURLs)+4)
	for _, u := range a.turn.STUNURLs {
		servers = append(servers, iceServer{URLs: u})
	}

	if a.turn.ProviderURL != "" {
		fetched, err := a.fetchTURNServers(c)
		if err != nil {
			// Degrade to STUN-only rather than failing the call.
			log.Warn().Err(err).Str("module", "adapters.http").Msg("turn provider unavailable")
		} else {
			servers = append(servers, fetched...)
		}
	}

	c.JSON(http.StatusOK, gin.H{"iceServers": servers})
}

func (a *API) fetchTURNServers(c *gin.Context) ([]iceServer, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, a.turn.ProviderURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var servers []iceServer
	if err := json.Unmarshal(body, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}
