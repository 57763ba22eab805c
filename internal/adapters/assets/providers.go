package assets

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
)

// Pexels searches photos through the Pexels API.
type Pexels struct {
	client *client
	base   string
	apiKey string
}

var _ core.ImageSearcher = (*Pexels)(nil)

// NewPexels creates a Pexels searcher.
func NewPexels(cfg Config, logger *logging.Logger) *Pexels {
	cfg = cfg.withDefaults()
	return &Pexels{
		client: newClient("pexels", cfg, logger),
		base:   strings.TrimRight(cfg.PexelsURL, "/"),
		apiKey: cfg.PexelsAPIKey,
	}
}

// SearchContentImages returns medium-size photos matching query. A photo
// without alt text is described by the query.
func (p *Pexels) SearchContentImages(ctx context.Context, query string) ([]core.ImageResource, error) {
	if p.apiKey == "" {
		return nil, core.ErrConfiguration(core.CodeInvalidConfig, "pexels api key not configured")
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(resultsPerQuery))
	params.Set("page", "1")

	var body struct {
		Photos []struct {
			Alt string `json:"alt"`
			Src struct {
				Medium string `json:"medium"`
			} `json:"src"`
		} `json:"photos"`
	}
	header := http.Header{"Authorization": []string{p.apiKey}}
	if err := p.client.getJSON(ctx, p.base+"/search?"+params.Encode(), header, &body); err != nil {
		return nil, err
	}

	out := make([]core.ImageResource, 0, len(body.Photos))
	for _, photo := range body.Photos {
		if photo.Src.Medium == "" {
			continue
		}
		desc := photo.Alt
		if desc == "" {
			desc = query
		}
		out = append(out, core.ImageResource{Category: core.ImageCategoryContent, Description: desc, URL: photo.Src.Medium})
	}
	return out, nil
}

// Undraw searches unDraw illustrations.
type Undraw struct {
	client *client
	base   string
}

var _ core.IllustrationSearcher = (*Undraw)(nil)

// NewUndraw creates an unDraw searcher.
func NewUndraw(cfg Config, logger *logging.Logger) *Undraw {
	cfg = cfg.withDefaults()
	return &Undraw{client: newClient("undraw", cfg, logger), base: strings.TrimRight(cfg.UndrawURL, "/")}
}

// SearchIllustrations returns up to twelve illustrations matching query.
func (u *Undraw) SearchIllustrations(ctx context.Context, query string) ([]core.ImageResource, error) {
	endpoint := u.base + "/search/" + url.PathEscape(query) + ".json?term=" + url.QueryEscape(query)

	var body struct {
		PageProps *struct {
			InitialResults []struct {
				Title string `json:"title"`
				Media string `json:"media"`
			} `json:"initialResults"`
		} `json:"pageProps"`
	}
	if err := u.client.getJSON(ctx, endpoint, nil, &body); err != nil {
		return nil, err
	}
	if body.PageProps == nil {
		return nil, nil
	}

	var out []core.ImageResource
	for _, item := range body.PageProps.InitialResults {
		if len(out) == resultsPerQuery {
			break
		}
		if strings.TrimSpace(item.Media) == "" {
			continue
		}
		title := item.Title
		if title == "" {
			title = "illustration"
		}
		out = append(out, core.ImageResource{Category: core.ImageCategoryIllustration, Description: title, URL: item.Media})
	}
	return out, nil
}

// Mermaid renders diagrams through mermaid.ink.
type Mermaid struct {
	client *client
	base   string
}

var _ core.DiagramRenderer = (*Mermaid)(nil)

// NewMermaid creates a mermaid.ink renderer.
func NewMermaid(cfg Config, logger *logging.Logger) *Mermaid {
	cfg = cfg.withDefaults()
	return &Mermaid{client: newClient("mermaid", cfg, logger), base: strings.TrimRight(cfg.MermaidURL, "/")}
}

// DiagramURL returns the mermaid.ink SVG URL for code.
func (m *Mermaid) DiagramURL(code string) string {
	return m.base + "/svg/" + base64.URLEncoding.EncodeToString([]byte(code))
}

// RenderDiagram checks that mermaid.ink can render code and returns the
// diagram URL. Blank code yields nothing.
func (m *Mermaid) RenderDiagram(ctx context.Context, code, description string) ([]core.ImageResource, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	diagramURL := m.DiagramURL(code)

	if err := m.client.probe(ctx, diagramURL); err != nil {
		return nil, err
	}

	if description == "" {
		description = "architecture diagram"
	}
	return []core.ImageResource{{Category: core.ImageCategoryArchitecture, Description: description, URL: diagramURL}}, nil
}

// Logos builds DiceBear logo URLs seeded by the description.
type Logos struct {
	base string
}

var _ core.LogoGenerator = (*Logos)(nil)

// NewLogos creates a logo generator.
func NewLogos(cfg Config) *Logos {
	cfg = cfg.withDefaults()
	return &Logos{base: cfg.LogoURL}
}

// GenerateLogo returns one logo for description.
func (l *Logos) GenerateLogo(_ context.Context, description string) ([]core.ImageResource, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("seed", description)
	params.Set("size", "512")
	return []core.ImageResource{{
		Category:    core.ImageCategoryLogo,
		Description: description,
		URL:         l.base + "?" + params.Encode(),
	}}, nil
}

// Providers bundles one instance of every asset provider.
type Providers struct {
	*Pexels
	*Undraw
	*Mermaid
	*Logos
}

// New creates all providers from one config.
func New(cfg Config, logger *logging.Logger) *Providers {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("assets")
	return &Providers{
		Pexels:  NewPexels(cfg, logger),
		Undraw:  NewUndraw(cfg, logger),
		Mermaid: NewMermaid(cfg, logger),
		Logos:   NewLogos(cfg),
	}
}
