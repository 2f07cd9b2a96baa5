package domain

// =============================================================================
// Progress Events
// =============================================================================

// ProgressEvent is one immutable progress record of a deployment run.
// Ordinal is assigned by the pipeline and strictly increases within a run.
type ProgressEvent struct {
	Stage    Stage  `json:"stage"`
	Message  string `json:"message"`
	Ordinal  uint64 `json:"ordinal"`
	Terminal bool   `json:"terminal,omitempty"`
}

// =============================================================================
// Deployment Result
// =============================================================================

// DeploymentResult is produced only when every stage succeeded.
type DeploymentResult struct {
	StoreURL   string `json:"url"`
	WebhookURL string `json:"webhookUrl"`
}

// =============================================================================
// Reconciliation Report
// =============================================================================

// ProductImages is the per-product line of a reconciliation report.
type ProductImages struct {
	InternalCode string `json:"internalCode"`
	ProductName  string `json:"productName"`
	ImageCount   int    `json:"imageCount"`
}

// ReconciliationReport compares an image directory tree with the product catalog.
// Folder lists and details are sorted by code so equal inputs give equal reports.
type ReconciliationReport struct {
	MatchedWithImages    int             `json:"productsWithImages"`
	MatchedWithoutImages int             `json:"productsWithoutImages"`
	TotalImageFiles      int             `json:"totalImages"`
	MissingFolders       []string        `json:"missingFolders"`
	OrphanFolders        []string        `json:"orphanFolders"`
	Details              []ProductImages `json:"details"`
}

// Matched returns the codes of catalog products that have at least one image.
func (r ReconciliationReport) Matched() []string {
	var codes []string
	for _, d := range r.Details {
		if d.ImageCount > 0 {
			codes = append(codes, d.InternalCode)
		}
	}
	return codes
}
