// Package pubmed is a client for the NCBI E-utilities API (esearch/efetch),
// used to pull literature records into the knowledge store.
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the public NCBI E-utilities endpoint.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// Article is one literature record returned by efetch.
type Article struct {
	PMID     string `json:"pmid"`
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Year     *int   `json:"year,omitempty"`
	Abstract string `json:"abstract"`
}

// ExternalID returns the stable source identifier for the article.
func (a *Article) ExternalID() string {
	return "PMID:" + a.PMID
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	// APIKey raises the NCBI rate limit; empty is allowed.
	APIKey  string
	Timeout time.Duration
}

// Client calls the NCBI E-utilities API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a PubMed client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("pubmed"),
	}
}

// esearchResponse is the JSON shape of an esearch call.
type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search runs an esearch query and returns matching PMIDs.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmax", strconv.Itoa(limit))
	params.Set("retmode", "json")

	body, err := c.get(ctx, "/esearch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var parsed esearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse esearch response: %w", err)
	}

	c.logger.Debug("PubMed search completed",
		zap.String("query", query),
		zap.Int("results", len(parsed.ESearchResult.IDList)))

	return parsed.ESearchResult.IDList, nil
}

// efetch XML shapes, trimmed to the fields the engine stores.
type efetchResponse struct {
	XMLName  xml.Name         `xml:"PubmedArticleSet"`
	Articles []efetchArticle  `xml:"PubmedArticle"`
}

type efetchArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Texts []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			AuthorList struct {
				Authors []struct {
					LastName string `xml:"LastName"`
					Initials string `xml:"Initials"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
			Journal struct {
				Issue struct {
					PubDate struct {
						Year string `xml:"Year"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

// Fetch retrieves full records for the given PMIDs via efetch.
func (c *Client) Fetch(ctx context.Context, ids []string) ([]Article, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids to fetch")
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	body, err := c.get(ctx, "/efetch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var parsed efetchResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse efetch response: %w", err)
	}

	articles := make([]Article, 0, len(parsed.Articles))
	for _, raw := range parsed.Articles {
		articles = append(articles, toArticle(raw))
	}

	c.logger.Debug("PubMed fetch completed",
		zap.Int("requested", len(ids)),
		zap.Int("returned", len(articles)))

	return articles, nil
}

// FetchOne retrieves a single article, accepting either a bare PMID or the
// "PMID:<id>" form used as an external source identifier.
func (c *Client) FetchOne(ctx context.Context, id string) (*Article, error) {
	pmid := strings.TrimPrefix(strings.TrimSpace(id), "PMID:")
	if pmid == "" {
		return nil, fmt.Errorf("empty PubMed id")
	}

	articles, err := c.Fetch(ctx, []string{pmid})
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("PubMed returned no record for %s", pmid)
	}
	return &articles[0], nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pubmed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pubmed request failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pubmed response: %w", err)
	}
	return body, nil
}

func toArticle(raw efetchArticle) Article {
	article := Article{
		PMID:     raw.Citation.PMID,
		Title:    raw.Citation.Article.Title,
		Abstract: strings.Join(raw.Citation.Article.Abstract.Texts, "\n"),
	}

	names := make([]string, 0, len(raw.Citation.Article.AuthorList.Authors))
	for _, a := range raw.Citation.Article.AuthorList.Authors {
		name := strings.TrimSpace(a.LastName + " " + a.Initials)
		if name != "" {
			names = append(names, name)
		}
	}
	article.Authors = strings.Join(names, ", ")

	if year, err := strconv.Atoi(raw.Citation.Article.Journal.Issue.PubDate.Year); err == nil {
		article.Year = &year
	}

	return article
}
