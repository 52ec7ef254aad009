package search

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xhad/dossier/pkg/logging"
)

const (
	DefaultYandexEndpoint    = "https://searchapi.api.cloud.yandex.net/v2/web/searchAsync"
	DefaultOperationEndpoint = "https://operation.api.cloud.yandex.net/operations"
)

type YandexConfig struct {
	IAMToken          string
	FolderID          string
	Endpoint          string
	OperationEndpoint string
	PollInterval      time.Duration
	Client            *http.Client
	Logger            *zap.Logger
}

// Yandex queries the Yandex Search API v2 in asynchronous mode.
type Yandex struct {
	config YandexConfig
	client *http.Client
	logger *zap.Logger
}

var _ Provider = (*Yandex)(nil)

func NewYandex(config YandexConfig) (*Yandex, error) {
	if config.IAMToken == "" || config.FolderID == "" {
		return nil, eris.New("search: yandex requires an IAM token and folder id")
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultYandexEndpoint
	}
	if config.OperationEndpoint == "" {
		config.OperationEndpoint = DefaultOperationEndpoint
	}
	if config.PollInterval == 0 {
		config.PollInterval = 15 * time.Second
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Yandex{config: config, client: client, logger: logging.OrNop(config.Logger)}, nil
}

type searchRequest struct {
	Query struct {
		QueryText  string `json:"queryText"`
		SearchType string `json:"searchType"`
		Page       string `json:"page"`
	} `json:"query"`
	FolderID       string `json:"folderId"`
	ResponseFormat string `json:"responseFormat"`
}

type operation struct {
	ID       string `json:"id"`
	Done     bool   `json:"done"`
	Response struct {
		RawData string `json:"rawData"`
	} `json:"response"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search starts a search operation, waits for it and parses the XML result.
func (y *Yandex) Search(ctx context.Context, query string, domains []string, page int) ([]Hit, error) {
	full := SiteQuery(query, domains, " | ")

	var body searchRequest
	body.Query.QueryText = full
	body.Query.SearchType = "SEARCH_TYPE_RU"
	body.Query.Page = strconv.Itoa(page)
	body.FolderID = y.config.FolderID
	body.ResponseFormat = "FORMAT_XML"

	y.logger.Info("search: starting yandex operation", zap.String("query", full), zap.Int("page", page))

	var op operation
	if err := y.do(ctx, http.MethodPost, y.config.Endpoint, body, &op); err != nil {
		return nil, eris.Wrap(err, "search: start yandex operation")
	}
	if op.ID == "" {
		return nil, eris.New("search: yandex returned no operation id")
	}

	done, err := y.wait(ctx, op.ID)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(done.Response.RawData)
	if err != nil {
		return nil, eris.Wrap(err, "search: decode rawData")
	}
	return ParseYandexXML(raw)
}

func (y *Yandex) wait(ctx context.Context, id string) (*operation, error) {
	url := strings.TrimRight(y.config.OperationEndpoint, "/") + "/" + id
	for {
		var op operation
		if err := y.do(ctx, http.MethodGet, url, nil, &op); err != nil {
			return nil, eris.Wrapf(err, "search: poll operation %s", id)
		}
		if op.Done {
			if op.Error != nil {
				return nil, eris.Errorf("search: operation %s failed: %d %s", id, op.Error.Code, op.Error.Message)
			}
			if op.Response.RawData == "" {
				return nil, eris.Errorf("search: operation %s has no rawData", id)
			}
			return &op, nil
		}

		y.logger.Debug("search: operation still running", zap.String("id", id), zap.Duration("wait", y.config.PollInterval))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(y.config.PollInterval):
		}
	}
}

func (y *Yandex) do(ctx context.Context, method, url string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+y.config.IAMToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// richText flattens mixed content such as `a <hlword>b</hlword> c`.
type richText string

func (t *richText) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	var b strings.Builder
	for depth := 1; depth > 0; {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(v)
		}
	}
	*t = richText(strings.TrimSpace(b.String()))
	return nil
}

type yandexDoc struct {
	URL      string     `xml:"url"`
	Domain   string     `xml:"domain"`
	Title    *richText  `xml:"title"`
	ModTime  string     `xml:"modtime"`
	Passages []richText `xml:"passages>passage"`
}

type yandexSearch struct {
	Error *struct {
		Code    string `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"response>error"`
	Docs []yandexDoc `xml:"response>results>grouping>group>doc"`
}

// ParseYandexXML converts a search response page into hits. Documents
// without a title or passage are skipped.
func ParseYandexXML(data []byte) ([]Hit, error) {
	var result yandexSearch
	if err := xml.Unmarshal(data, &result); err != nil {
		return nil, eris.Wrap(err, "search: parse yandex xml")
	}
	// code 15 means "nothing found" and is an ordinary empty page
	if result.Error != nil && result.Error.Code != "15" {
		return nil, eris.Errorf("search: yandex error %s: %s", result.Error.Code, strings.TrimSpace(result.Error.Message))
	}

	hits := make([]Hit, 0, len(result.Docs))
	for _, doc := range result.Docs {
		if doc.Title == nil || len(doc.Passages) == 0 {
			continue
		}
		hits = append(hits, Hit{
			URL:     strings.TrimSpace(doc.URL),
			Domain:  strings.TrimSpace(doc.Domain),
			Title:   string(*doc.Title),
			Passage: string(doc.Passages[0]),
			Date:    parseModTime(doc.ModTime),
		})
	}
	return hits, nil
}

func parseModTime(s string) string {
	t, err := time.Parse("20060102T150405", strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}
