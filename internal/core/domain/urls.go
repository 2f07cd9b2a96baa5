package domain

import "fmt"

// =============================================================================
// Store URLs
// =============================================================================

const (
	// LocalHost is the loop-back address used whenever no domain is configured.
	LocalHost = "localhost"
	// LocalStorePort is the host port the application server is published on locally.
	LocalStorePort = 9000
)

// LocalStoreURL is the store URL of a local deployment.
var LocalStoreURL = fmt.Sprintf("http://%s:%d", LocalHost, LocalStorePort)

// StoreURL derives the public store URL.
//
// Example:
//
//	StoreURL(RemoteTarget{Host: "203.0.113.7", Domain: "shop.example.com"}) // "https://shop.example.com"
//	StoreURL(LocalTarget{})                                                // "http://localhost:9000"
func StoreURL(target Target) string {
	switch t := target.(type) {
	case RemoteTarget:
		if t.Domain != "" {
			return "https://" + t.Domain
		}
	case *RemoteTarget:
		if t != nil && t.Domain != "" {
			return "https://" + t.Domain
		}
	}
	return LocalStoreURL
}

// WebhookURL derives the payment webhook URL for a gateway.
//
// Example:
//
//	WebhookURL("https://shop.example.com", "mercadopago")
//	// "https://shop.example.com/api/webhooks/mercadopago"
func WebhookURL(storeURL, gateway string) string {
	return fmt.Sprintf("%s/api/webhooks/%s", storeURL, gateway)
}

// ResultFor builds the deployment result for a config.
func ResultFor(cfg DeploymentConfig) DeploymentResult {
	store := StoreURL(cfg.Target)
	return DeploymentResult{
		StoreURL:   store,
		WebhookURL: WebhookURL(store, cfg.Payment.GatewayName()),
	}
}
