package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// Etherscan ingests ERC20 Transfer events through the explorer-style V2 log
// API (chainid-scoped). Logs are pulled over a descending sequence of block
// windows fetched in parallel under a bounded semaphore with an approximate
// global rate limit; oversized windows are split recursively at their
// midpoint. When getLogs yields nothing, the account token-transfer list
// endpoint is used as a fallback.
type Etherscan struct {
	cfg        *config.Config
	chainID    int
	apiURL     string
	httpClient *http.Client
}

// maxSplitDepth bounds the recursive window subdivision.
const maxSplitDepth = 6

// conservativeLatestBlock is used when every block-height lookup fails.
const conservativeLatestBlock = 20_000_000

// NewEtherscan builds the provider for a chain.
func NewEtherscan(cfg *config.Config, chain string) *Etherscan {
	return &Etherscan{
		cfg:        cfg,
		chainID:    config.ChainID(chain),
		apiURL:     cfg.EtherscanAPIURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second},
	}
}

// NewEtherscanWithURL is used by tests to point at a stub server.
func NewEtherscanWithURL(cfg *config.Config, chain, apiURL string) *Etherscan {
	p := NewEtherscan(cfg, chain)
	p.apiURL = apiURL
	return p
}

func (e *Etherscan) Name() string { return "etherscan" }

// envelope is the Etherscan response wrapper. result is a list on success
// and an explanatory string on failure, so it stays raw until inspected.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type etherscanLog struct {
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	TransactionHash string   `json:"transactionHash"`
	TimeStamp       string   `json:"timeStamp"`
	BlockNumber     string   `json:"blockNumber"`
}

type tokentxRow struct {
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	TokenDecimal string `json:"tokenDecimal"`
	TimeStamp    string `json:"timeStamp"`
	BlockNumber  string `json:"blockNumber"`
}

// FetchTransfers retrieves Transfer events over parallel block windows,
// falling back to the tokentx list API when getLogs yields zero results.
func (e *Etherscan) FetchTransfers(ctx context.Context, tokenAddress string, maxCount int) ([]models.Transfer, error) {
	token := strings.ToLower(tokenAddress)

	latestBlock := e.latestBlock(ctx)
	if latestBlock <= 0 || latestBlock > 100_000_000 {
		latestBlock = conservativeLatestBlock
	}
	log.Printf("Etherscan: latest block %d", latestBlock)

	decimals := e.decimals(ctx, token)

	maxPages := int64(math.Ceil(float64(maxCount) / 1000))
	if maxPages < 1 {
		maxPages = 1
	}
	if maxPages > 10 {
		maxPages = 10
	}
	window := latestBlock / (maxPages * 12)
	if window < 2_000 {
		window = 2_000
	}
	if window > 10_000 {
		window = 10_000
	}

	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrentRequests))
	rps := e.cfg.RequestsPerSecond
	if rps < 1 {
		rps = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	pages := make([][]models.Transfer, maxPages)
	cursor := latestBlock
	for i := int64(0); i < maxPages; i++ {
		start := cursor - window + 1
		if start < 0 {
			start = 0
		}
		end := cursor

		idx := i + 1
		slot := i
		g.Go(func() error {
			// Approximate global rate limit: stagger issuance by index.
			delay := time.Duration(float64(idx) / float64(rps) * float64(time.Second))
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(delay):
			}
			pages[slot] = e.fetchLogWindow(gctx, sem, token, decimals, start, end, 0)
			return nil
		})

		cursor = start - 1
		if cursor <= 0 {
			break
		}
	}
	_ = g.Wait()

	var all []models.Transfer
	for _, page := range pages {
		all = append(all, page...)
	}
	result := dedupSortLimit(all, maxCount)
	if len(result) > 0 {
		return result, nil
	}

	log.Printf("Etherscan: getLogs returned 0 results, trying account.tokentx fallback")
	return e.fetchTokentx(ctx, token, maxCount), nil
}

// fetchLogWindow pulls one [start, end] block window, retrying rate limits
// with exponential backoff and recursively splitting windows that overflow
// the server's log response cap.
func (e *Etherscan) fetchLogWindow(ctx context.Context, sem *semaphore.Weighted, token string, decimals int, startBlock, endBlock int64, depth int) []models.Transfer {
	split := func() []models.Transfer {
		mid := (startBlock + endBlock) / 2
		left := e.fetchLogWindow(ctx, sem, token, decimals, startBlock, mid, depth+1)
		right := e.fetchLogWindow(ctx, sem, token, decimals, mid+1, endBlock, depth+1)
		return append(left, right...)
	}

	backoff := 500 * time.Millisecond
	for tries := 0; tries < 3; {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		env, status, err := e.get(ctx, url.Values{
			"module":    {"logs"},
			"action":    {"getLogs"},
			"address":   {token},
			"fromBlock": {strconv.FormatInt(startBlock, 10)},
			"toBlock":   {strconv.FormatInt(endBlock, 10)},
			"topic0":    {transferTopic0},
			"chainid":   {strconv.Itoa(e.chainID)},
			"apikey":    {e.cfg.EtherscanAPIKey},
		})
		sem.Release(1)

		if err != nil {
			if status > 0 && !retryableStatus(status) {
				log.Printf("Etherscan: HTTP %d on window %d-%d", status, startBlock, endBlock)
				return nil
			}
			tries++
			backoffSleep(ctx, backoff)
			backoff *= 2
			continue
		}

		var logs []etherscanLog
		if env.Status == "1" && json.Unmarshal(env.Result, &logs) == nil {
			log.Printf("Etherscan: window %d-%d: %d logs (depth %d)", startBlock, endBlock, len(logs), depth)
			if len(logs) >= 1000 && depth < maxSplitDepth {
				return split()
			}
			return parseLogs(logs, decimals)
		}

		// status=0: the result field carries an explanatory string.
		var resultText string
		_ = json.Unmarshal(env.Result, &resultText)
		low := strings.ToLower(resultText)
		switch {
		case strings.Contains(low, "invalid api key"):
			log.Printf("Etherscan: invalid API key (message %q)", env.Message)
			return nil
		case (strings.Contains(low, "log response size exceeded") || strings.Contains(low, "exceeded")) && depth < maxSplitDepth:
			log.Printf("Etherscan: window %d-%d too large (%q), splitting", startBlock, endBlock, resultText)
			return split()
		case strings.Contains(low, "max rate limit") || strings.Contains(low, "rate limit") || strings.Contains(low, "too many"):
			log.Printf("Etherscan: rate limited (%q), retrying", resultText)
			tries++
			backoffSleep(ctx, backoff)
			backoff *= 2
			continue
		}

		log.Printf("Etherscan: window %d-%d: no logs (message %q, result %q)", startBlock, endBlock, env.Message, resultText)
		return nil
	}
	log.Printf("Etherscan: persistent error on window %d-%d", startBlock, endBlock)
	return nil
}

// parseLogs decodes raw Transfer event logs. from/to are the last 20 bytes
// of topics[1] and topics[2]; value is the data word scaled by decimals.
func parseLogs(logs []etherscanLog, decimals int) []models.Transfer {
	out := make([]models.Transfer, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) < 3 {
			continue
		}
		raw, ok := hexToBig(l.Data)
		if !ok {
			continue
		}
		out = append(out, models.Transfer{
			Hash:      l.TransactionHash,
			From:      "0x" + lastChars(strings.ToLower(l.Topics[1]), 40),
			To:        "0x" + lastChars(strings.ToLower(l.Topics[2]), 40),
			Value:     scaleAmount(raw, decimals),
			Timestamp: flexibleTimestamp(l.TimeStamp),
			Block:     hexToInt64(l.BlockNumber),
		})
	}
	return out
}

// fetchTokentx pages the account token-transfer list endpoint descending
// until a short page or maxCount is reached.
func (e *Etherscan) fetchTokentx(ctx context.Context, token string, maxCount int) []models.Transfer {
	perPage := 1000
	if perPage > maxCount {
		perPage = maxCount
	}

	var transfers []models.Transfer
	page := 1
	backoff := 500 * time.Millisecond
	for len(transfers) < maxCount {
		env, status, err := e.get(ctx, url.Values{
			"module":          {"account"},
			"action":          {"tokentx"},
			"contractaddress": {token},
			"page":            {strconv.Itoa(page)},
			"offset":          {strconv.Itoa(perPage)},
			"sort":            {"desc"},
			"chainid":         {strconv.Itoa(e.chainID)},
			"apikey":          {e.cfg.EtherscanAPIKey},
		})
		if err != nil {
			if status > 0 && !retryableStatus(status) {
				break
			}
			if ctx.Err() != nil {
				break
			}
			backoffSleep(ctx, backoff)
			backoff *= 2
			continue
		}

		var rows []tokentxRow
		if env.Status == "1" && json.Unmarshal(env.Result, &rows) == nil {
			if len(rows) == 0 {
				break
			}
			for _, row := range rows {
				d := 18
				if n, err := strconv.Atoi(row.TokenDecimal); err == nil {
					d = n
				}
				raw, ok := new(big.Int).SetString(row.Value, 10)
				if !ok {
					continue
				}
				transfers = append(transfers, models.Transfer{
					Hash:      row.Hash,
					From:      strings.ToLower(row.From),
					To:        strings.ToLower(row.To),
					Value:     scaleAmount(raw, d),
					Timestamp: flexibleTimestamp(row.TimeStamp),
					Block:     decToInt64(row.BlockNumber),
				})
			}
			page++
			if len(rows) < perPage {
				break
			}
			continue
		}

		var resultText string
		_ = json.Unmarshal(env.Result, &resultText)
		low := strings.ToLower(resultText)
		if strings.Contains(low, "rate limit") || strings.Contains(low, "too many") {
			backoffSleep(ctx, backoff)
			backoff *= 2
			continue
		}
		break
	}

	return dedupSortLimit(transfers, maxCount)
}

// FetchMetadata resolves token metadata via the tokeninfo endpoint.
func (e *Etherscan) FetchMetadata(ctx context.Context, tokenAddress string) (models.TokenMetadata, error) {
	token := strings.ToLower(tokenAddress)
	meta := models.TokenMetadata{Address: token, Symbol: "UNKNOWN", Name: "Token", Decimals: 18}

	env, _, err := e.get(ctx, url.Values{
		"module":          {"token"},
		"action":          {"tokeninfo"},
		"contractaddress": {token},
		"chainid":         {strconv.Itoa(e.chainID)},
		"apikey":          {e.cfg.EtherscanAPIKey},
	})
	if err != nil {
		log.Printf("Etherscan: metadata error: %v", err)
		return meta, nil
	}

	var infos []struct {
		Symbol      string `json:"symbol"`
		Name        string `json:"tokenName"`
		Decimals    string `json:"decimals"`
		TotalSupply string `json:"totalSupply"`
	}
	if env.Status == "1" && json.Unmarshal(env.Result, &infos) == nil && len(infos) > 0 {
		info := infos[0]
		if info.Symbol != "" {
			meta.Symbol = info.Symbol
		}
		if info.Name != "" {
			meta.Name = info.Name
		}
		if d, err := strconv.Atoi(info.Decimals); err == nil {
			meta.Decimals = d
		}
		meta.TotalSupply = info.TotalSupply
	}
	return meta, nil
}

// latestBlock resolves the chain head via eth_blockNumber, falling back to
// the block-by-time lookup; 0 signals total failure.
func (e *Etherscan) latestBlock(ctx context.Context) int64 {
	env, _, err := e.get(ctx, url.Values{
		"module":  {"proxy"},
		"action":  {"eth_blockNumber"},
		"chainid": {strconv.Itoa(e.chainID)},
		"apikey":  {e.cfg.EtherscanAPIKey},
	})
	if err == nil {
		var hexBlock string
		if json.Unmarshal(env.Result, &hexBlock) == nil {
			if n := hexToInt64(hexBlock); n > 0 {
				return n
			}
		}
	}

	env, _, err = e.get(ctx, url.Values{
		"module":    {"block"},
		"action":    {"getblocknobytime"},
		"timestamp": {strconv.FormatInt(time.Now().Unix(), 10)},
		"closest":   {"before"},
		"chainid":   {strconv.Itoa(e.chainID)},
		"apikey":    {e.cfg.EtherscanAPIKey},
	})
	if err == nil {
		var dec string
		if json.Unmarshal(env.Result, &dec) == nil {
			return decToInt64(dec)
		}
	}
	return 0
}

// decimals resolves the token's decimals via tokeninfo, then eth_call on
// the decimals() selector, finally defaulting to 18.
func (e *Etherscan) decimals(ctx context.Context, token string) int {
	env, _, err := e.get(ctx, url.Values{
		"module":          {"token"},
		"action":          {"tokeninfo"},
		"contractaddress": {token},
		"chainid":         {strconv.Itoa(e.chainID)},
		"apikey":          {e.cfg.EtherscanAPIKey},
	})
	if err == nil && env.Status == "1" {
		var infos []struct {
			Decimals string `json:"decimals"`
		}
		if json.Unmarshal(env.Result, &infos) == nil && len(infos) > 0 {
			if d, err := strconv.Atoi(infos[0].Decimals); err == nil {
				return d
			}
		}
	}

	env, _, err = e.get(ctx, url.Values{
		"module":  {"proxy"},
		"action":  {"eth_call"},
		"to":      {token},
		"data":    {decimalsSelector},
		"tag":     {"latest"},
		"chainid": {strconv.Itoa(e.chainID)},
		"apikey":  {e.cfg.EtherscanAPIKey},
	})
	if err == nil {
		var hexRes string
		if json.Unmarshal(env.Result, &hexRes) == nil && strings.HasPrefix(hexRes, "0x") {
			if d, ok := hexToBig(hexRes); ok && d.IsInt64() {
				return int(d.Int64())
			}
		}
	}
	return 18
}

// get performs one API call and decodes the response envelope. A non-2xx
// status is returned alongside the error so callers can classify it.
func (e *Etherscan) get(ctx context.Context, params url.Values) (envelope, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return envelope{}, 0, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return envelope{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return envelope{}, resp.StatusCode, fmt.Errorf("etherscan: HTTP %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, resp.StatusCode, fmt.Errorf("etherscan: decode: %w", err)
	}
	return env, resp.StatusCode, nil
}

// flexibleTimestamp accepts hex-quantity or decimal-string timestamps.
func flexibleTimestamp(s string) int64 {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") {
		return hexToInt64(s)
	}
	return decToInt64(s)
}

func decToInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// lastChars returns the trailing n characters of s (the address portion of
// a 32-byte topic).
func lastChars(s string, n int) string {
	if len(s) <= n {
		return strings.TrimPrefix(s, "0x")
	}
	return s[len(s)-n:]
}
