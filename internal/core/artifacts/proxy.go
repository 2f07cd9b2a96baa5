package artifacts

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/artpar/storedeploy/internal/core/deployment"
	"github.com/artpar/storedeploy/internal/core/domain"
)

// =============================================================================
// Proxy Config
// =============================================================================

// LocalProxySite is the site address rendered for local targets.
const LocalProxySite = "http://127.0.0.1:8080"

var caddyfileTemplate = template.Must(template.New("Caddyfile").Parse(`{{.Site}} {
	encode gzip

	log {
		output file {{.AccessLog}}
		format json
	}

	handle /api/* {
		reverse_proxy {{.Backend}}
	}

	handle /admin* {
		reverse_proxy {{.Backend}}
	}

	handle_path /images/* {
		rewrite * /{{.Bucket}}{uri}
		reverse_proxy {{.Images}}
	}

	handle {
		root * {{.WebRoot}}
		try_files {path} /index.html
		file_server
	}
}
`))

type caddyfileData struct {
	Site      string
	AccessLog string
	Backend   string
	Images    string
	Bucket    string
	WebRoot   string
}

// RenderProxyConfig renders the Caddyfile of a store deployment.
//
// Routes:
//   - /api/* and /admin* go to the application server
//   - /images/* go to the images bucket in object storage
//   - everything else is served from the static storefront files
//
// Remote targets use the domain as site address, so the proxy obtains
// certificates for it. Local targets get a loop-back address. Only
// opts.ImagesBucket is read from opts.
func RenderProxyConfig(cfg domain.DeploymentConfig, opts ManifestOptions) (string, error) {
	bucket, err := opts.bucket()
	if err != nil {
		return "", err
	}
	site := LocalProxySite
	if remote, ok := cfg.Remote(); ok {
		if err := checkRemote(remote); err != nil {
			return "", err
		}
		site = remote.Domain
	}

	data := caddyfileData{
		Site:      site,
		AccessLog: deployment.ProxyAccessLog,
		Backend:   fmt.Sprintf("%s:%d", deployment.ServiceMedusa, deployment.MedusaPort),
		Images:    fmt.Sprintf("%s:%d", deployment.ServiceMinio, deployment.MinioPort),
		Bucket:    bucket,
		WebRoot:   deployment.ProxyWebRoot,
	}

	var buf bytes.Buffer
	if err := caddyfileTemplate.Execute(&buf, data); err != nil {
		return "", templateError("proxy", err.Error())
	}
	return buf.String(), nil
}
