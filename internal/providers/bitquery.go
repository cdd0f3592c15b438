package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/machinebox/graphql"

	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// Bitquery ingests transfers through the BitQuery GraphQL APIs. The v2
// streaming endpoint is tried first, then the v1 endpoint; the two versions
// have different schemas and both response shapes are handled. A 401 or a
// GraphQL errors payload falls through to the next version; exhausting both
// yields an empty result.
type Bitquery struct {
	cfg     *config.Config
	chain   string
	clients map[string]*graphql.Client
}

// NewBitquery builds the provider for a chain.
func NewBitquery(cfg *config.Config, chain string) *Bitquery {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Bitquery{
		cfg:   cfg,
		chain: chain,
		clients: map[string]*graphql.Client{
			"V2": graphql.NewClient(cfg.BitqueryStreamingEndpoint, graphql.WithHTTPClient(httpClient)),
			"V1": graphql.NewClient(cfg.BitqueryEndpoint, graphql.WithHTTPClient(httpClient)),
		},
	}
}

func (b *Bitquery) Name() string { return "bitquery" }

type bitqueryV2Response struct {
	EVM struct {
		Transfers []struct {
			Block struct {
				Time string `json:"Time"`
			} `json:"Block"`
			Transaction struct {
				Hash string `json:"Hash"`
			} `json:"Transaction"`
			Transfer struct {
				Sender   string          `json:"Sender"`
				Receiver string          `json:"Receiver"`
				Amount   json.RawMessage `json:"Amount"`
				Currency struct {
					Symbol        string `json:"Symbol"`
					SmartContract string `json:"SmartContract"`
					Decimals      *int   `json:"Decimals"`
				} `json:"Currency"`
			} `json:"Transfer"`
		} `json:"Transfers"`
	} `json:"EVM"`
}

type bitqueryV1Response struct {
	Ethereum struct {
		Transfers []struct {
			Block struct {
				Timestamp struct {
					Unixtime int64 `json:"unixtime"`
				} `json:"timestamp"`
				Height int64 `json:"height"`
			} `json:"block"`
			Transaction struct {
				Hash string `json:"hash"`
			} `json:"transaction"`
			Sender struct {
				Address string `json:"address"`
			} `json:"sender"`
			Receiver struct {
				Address string `json:"address"`
			} `json:"receiver"`
			Amount   json.RawMessage `json:"amount"`
			Currency struct {
				Symbol   string `json:"symbol"`
				Decimals *int   `json:"decimals"`
			} `json:"currency"`
		} `json:"transfers"`
	} `json:"ethereum"`
}

// FetchTransfers queries v2 then v1 until one version returns transfers.
func (b *Bitquery) FetchTransfers(ctx context.Context, tokenAddress string, maxCount int) ([]models.Transfer, error) {
	v2Network, v1Network := config.BitqueryNetworks(b.chain)
	limit := maxCount
	if limit > 10000 {
		limit = 10000
	}

	queryV2 := fmt.Sprintf(`
	query ($token_address: String!, $limit: Int!) {
	  EVM(dataset: combined, network: %s) {
	    Transfers(
	      limit: {count: $limit}
	      orderBy: {descending: Block_Time}
	      where: {Transfer: {Currency: {SmartContract: {is: $token_address}}}}
	    ) {
	      Block { Time }
	      Transaction { Hash }
	      Transfer {
	        Sender
	        Receiver
	        Amount
	        Currency { Symbol SmartContract Decimals }
	      }
	    }
	  }
	}`, v2Network)

	queryV1 := fmt.Sprintf(`
	query ($token_address: String!, $limit: Int!) {
	  ethereum(network: %s) {
	    transfers(
	      options: {desc: "block.timestamp.unixtime", limit: $limit}
	      currency: {is: $token_address}
	    ) {
	      block {
	        timestamp { unixtime }
	        height
	      }
	      transaction { hash }
	      sender { address }
	      receiver { address }
	      amount
	      currency { symbol decimals }
	    }
	  }
	}`, v1Network)

	for _, version := range []string{"V2", "V1"} {
		query := queryV2
		if version == "V1" {
			query = queryV1
		}

		req := graphql.NewRequest(query)
		req.Var("token_address", tokenAddress)
		req.Var("limit", limit)
		req.Header.Set("Authorization", "Bearer "+b.cfg.BitqueryAccessToken)
		req.Header.Set("X-API-KEY", b.cfg.BitqueryAccessToken)

		log.Printf("BitQuery: fetching transfers via %s API", version)

		var transfers []models.Transfer
		var err error
		if version == "V2" {
			var resp bitqueryV2Response
			if err = b.clients[version].Run(ctx, req, &resp); err == nil {
				transfers = b.parseV2(resp)
			}
		} else {
			var resp bitqueryV1Response
			if err = b.clients[version].Run(ctx, req, &resp); err == nil {
				transfers = b.parseV1(resp)
			}
		}
		if err != nil {
			// Covers 401s and GraphQL errors payloads alike.
			log.Printf("BitQuery: %s API error: %v", version, err)
			continue
		}
		if len(transfers) > 0 {
			log.Printf("BitQuery: parsed %d transfers from %s", len(transfers), version)
			return dedupSortLimit(transfers, maxCount), nil
		}
		log.Printf("BitQuery: no data from %s API, trying next", version)
	}

	log.Printf("BitQuery: both V2 and V1 APIs returned nothing")
	return nil, nil
}

func (b *Bitquery) parseV2(resp bitqueryV2Response) []models.Transfer {
	var out []models.Transfer
	for _, t := range resp.EVM.Transfers {
		if t.Transfer.Sender == "" || t.Transfer.Receiver == "" {
			continue
		}
		decimals := 18
		if t.Transfer.Currency.Decimals != nil {
			decimals = *t.Transfer.Currency.Decimals
		}
		out = append(out, models.Transfer{
			Hash:      t.Transaction.Hash,
			From:      strings.ToLower(t.Transfer.Sender),
			To:        strings.ToLower(t.Transfer.Receiver),
			Value:     flexibleFloat(t.Transfer.Amount) / math.Pow10(decimals),
			Timestamp: parseISOTimestamp(t.Block.Time),
		})
	}
	return out
}

func (b *Bitquery) parseV1(resp bitqueryV1Response) []models.Transfer {
	var out []models.Transfer
	for _, t := range resp.Ethereum.Transfers {
		if t.Sender.Address == "" || t.Receiver.Address == "" {
			continue
		}
		decimals := 18
		if t.Currency.Decimals != nil {
			decimals = *t.Currency.Decimals
		}
		out = append(out, models.Transfer{
			Hash:      t.Transaction.Hash,
			From:      strings.ToLower(t.Sender.Address),
			To:        strings.ToLower(t.Receiver.Address),
			Value:     flexibleFloat(t.Amount) / math.Pow10(decimals),
			Timestamp: t.Block.Timestamp.Unixtime,
			Block:     t.Block.Height,
		})
	}
	return out
}

// FetchMetadata resolves token metadata through the v1 smart-contract
// currency lookup.
func (b *Bitquery) FetchMetadata(ctx context.Context, tokenAddress string) (models.TokenMetadata, error) {
	_, v1Network := config.BitqueryNetworks(b.chain)
	meta := models.TokenMetadata{Address: tokenAddress, Symbol: "UNKNOWN", Name: "Token", Decimals: 18}

	query := fmt.Sprintf(`
	{
	  ethereum(network: %s) {
	    address(address: {is: %q}) {
	      smartContract {
	        currency {
	          symbol
	          name
	          decimals
	          totalSupply
	        }
	      }
	    }
	  }
	}`, v1Network, tokenAddress)

	req := graphql.NewRequest(query)
	req.Header.Set("Authorization", "Bearer "+b.cfg.BitqueryAccessToken)
	req.Header.Set("X-API-KEY", b.cfg.BitqueryAccessToken)

	var resp struct {
		Ethereum struct {
			Address []struct {
				SmartContract *struct {
					Currency *struct {
						Symbol      string          `json:"symbol"`
						Name        string          `json:"name"`
						Decimals    *int            `json:"decimals"`
						TotalSupply json.RawMessage `json:"totalSupply"`
					} `json:"currency"`
				} `json:"smartContract"`
			} `json:"address"`
		} `json:"ethereum"`
	}
	if err := b.clients["V1"].Run(ctx, req, &resp); err != nil {
		log.Printf("BitQuery: metadata error: %v", err)
		return meta, nil
	}

	if len(resp.Ethereum.Address) > 0 && resp.Ethereum.Address[0].SmartContract != nil {
		if cur := resp.Ethereum.Address[0].SmartContract.Currency; cur != nil {
			if cur.Symbol != "" {
				meta.Symbol = cur.Symbol
			}
			if cur.Name != "" {
				meta.Name = cur.Name
			}
			if cur.Decimals != nil {
				meta.Decimals = *cur.Decimals
			}
			if len(cur.TotalSupply) > 0 {
				meta.TotalSupply = strings.Trim(string(cur.TotalSupply), `"`)
			}
		}
	}
	return meta, nil
}

// flexibleFloat parses a JSON value that may arrive as a number or as a
// quoted decimal string, which varies between BitQuery schema versions.
func flexibleFloat(raw json.RawMessage) float64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
