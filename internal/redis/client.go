package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"conveniencia/internal/models"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound is returned when a key holds no value.
var ErrNotFound = errors.New("key not found")

const (
	printedKey      = "printed_tabs"
	transactionsKey = "payment_transactions"
	cashClosesKey   = "cash_close_history"
	paidItemsPrefix = "paid_items:"
	tempPrefix      = "temp:"
)

type Client struct {
	rdb *redis.Client
}

func Initialize(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	c := NewClient(redis.NewClient(opt))

	// Test connection
	if err := c.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return c, nil
}

func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Temporary data management
func (c *Client) SetTempData(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal temp data: %w", err)
	}

	return c.rdb.Set(ctx, tempPrefix+key, jsonData, ttl).Err()
}

func (c *Client) GetTempData(ctx context.Context, key string, dest interface{}) error {
	val, err := c.rdb.Get(ctx, tempPrefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get temp data: %w", err)
	}

	return json.Unmarshal([]byte(val), dest)
}

func (c *Client) DeleteTempData(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, tempPrefix+key).Err()
}

// Printed tab markers
func (c *Client) MarkPrinted(ctx context.Context, tabID string) error {
	return c.rdb.SAdd(ctx, printedKey, tabID).Err()
}

func (c *Client) UnmarkPrinted(ctx context.Context, tabID string) error {
	return c.rdb.SRem(ctx, printedKey, tabID).Err()
}

func (c *Client) IsPrinted(ctx context.Context, tabID string) (bool, error) {
	return c.rdb.SIsMember(ctx, printedKey, tabID).Result()
}

func (c *Client) PrintedTabs(ctx context.Context) (map[string]bool, error) {
	members, err := c.rdb.SMembers(ctx, printedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get printed tabs: %w", err)
	}
	printed := make(map[string]bool, len(members))
	for _, m := range members {
		printed[m] = true
	}
	return printed, nil
}

// Payment transaction history
func (c *Client) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	return c.pushJSON(ctx, transactionsKey, tx)
}

func (c *Client) Transactions(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := c.readJSONList(ctx, transactionsKey, &txs); err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return txs, nil
}

func (c *Client) ReplaceTransactions(ctx context.Context, txs []models.Transaction) error {
	values := make([]interface{}, 0, len(txs))
	for i := range txs {
		data, err := json.Marshal(&txs[i])
		if err != nil {
			return fmt.Errorf("failed to marshal transaction: %w", err)
		}
		values = append(values, data)
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, transactionsKey)
		if len(values) > 0 {
			pipe.RPush(ctx, transactionsKey, values...)
		}
		return nil
	})
	return err
}

func (c *Client) ClearTransactions(ctx context.Context) error {
	return c.rdb.Del(ctx, transactionsKey).Err()
}

// ArchiveCashClose appends the close record and clears the transaction
// history in one MULTI block.
func (c *Client) ArchiveCashClose(ctx context.Context, record *models.CashClose) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal cash close: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, cashClosesKey, data)
		pipe.Del(ctx, transactionsKey)
		return nil
	})
	return err
}

func (c *Client) CashCloses(ctx context.Context) ([]models.CashClose, error) {
	var closes []models.CashClose
	if err := c.readJSONList(ctx, cashClosesKey, &closes); err != nil {
		return nil, fmt.Errorf("failed to get cash close history: %w", err)
	}
	return closes, nil
}

// Paid items ledger: one hash per tab, order line id -> settled quantity.
func (c *Client) AddPaidQuantities(ctx context.Context, tabID string, quantities map[string]int) error {
	if len(quantities) == 0 {
		return nil
	}
	key := paidItemsPrefix + tabID
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for lineID, qty := range quantities {
			pipe.HIncrBy(ctx, key, lineID, int64(qty))
		}
		return nil
	})
	return err
}

func (c *Client) PaidQuantities(ctx context.Context, tabID string) (map[string]int, error) {
	raw, err := c.rdb.HGetAll(ctx, paidItemsPrefix+tabID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get paid items: %w", err)
	}
	paid := make(map[string]int, len(raw))
	for lineID, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		paid[lineID] = n
	}
	return paid, nil
}

func (c *Client) ClearPaidQuantities(ctx context.Context, tabID string) error {
	return c.rdb.Del(ctx, paidItemsPrefix+tabID).Err()
}

// Pub/Sub
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// Streams
func (c *Client) AppendStream(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: values,
	}).Result()
}

// ReadStream returns the entries after lastID. A negative block does not wait.
func (c *Client) ReadStream(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XMessage, error) {
	res, err := c.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res[0].Messages, nil
}

// LastStreamID returns the id of the newest entry, or "0" for an empty stream.
func (c *Client) LastStreamID(ctx context.Context, stream string) (string, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "0", nil
	}
	return msgs[0].ID, nil
}

func (c *Client) pushJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s entry: %w", key, err)
	}
	return c.rdb.RPush(ctx, key, data).Err()
}

// readJSONList decodes every element of the list into dest, a pointer to a slice.
func (c *Client) readJSONList(ctx context.Context, key string, dest interface{}) error {
	vals, err := c.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return err
	}
	buf := []byte{'['}
	for i, v := range vals {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, v...)
	}
	buf = append(buf, ']')
	return json.Unmarshal(buf, dest)
}

// Close Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
