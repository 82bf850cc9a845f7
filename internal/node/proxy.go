// Proxy forwards a caller's request to the member that owns its key, using
// a plain net/http.Client, mirroring the teacher's api.Server request-handling
// style (internal/api/server.go) generalized to opaque forwarding instead of
// the teacher's fixed REST surface.
package node

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ringmesh/ringmesh/internal/domain"
)

// DefaultProxyReqTimeout bounds one forwarded request end to end.
const DefaultProxyReqTimeout = 30 * time.Second

// HTTPProxy is the default domain.Proxy implementation.
type HTTPProxy struct {
	client *http.Client
}

// NewHTTPProxy creates an HTTPProxy whose forwarded requests time out after
// timeout (0 uses DefaultProxyReqTimeout).
func NewHTTPProxy(timeout time.Duration) *HTTPProxy {
	if timeout <= 0 {
		timeout = DefaultProxyReqTimeout
	}
	return &HTTPProxy{client: &http.Client{Timeout: timeout}}
}

// Forward implements domain.Proxy.
func (p *HTTPProxy) Forward(ctx context.Context, target, method, path string, body []byte) ([]byte, int, error) {
	url := fmt.Sprintf("http://%s%s", target, path)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("proxy: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("proxy: %w: %w", domain.ErrTransportClosed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("proxy: read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

var _ domain.Proxy = (*HTTPProxy)(nil)
