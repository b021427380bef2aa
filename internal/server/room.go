package server

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// Trade agreement directions and product categories.
const (
	TradeImport = "import"
	TradeExport = "export"

	ProductCommodity   = "commodity"
	ProductManufacture = "manufacture"
)

type Player struct {
	Username string `json:"username"`
	Country  string `json:"country"`
	Online   bool   `json:"online"`
	connID   string // not serialized
}

// UnmarshalJSON accepts both the rich record form and the legacy
// "username (country)" string form.
func (p *Player) UnmarshalJSON(data []byte) error {
	var legacy string
	if err := json.Unmarshal(data, &legacy); err == nil {
		if parsed := ParsePlayerString(legacy); parsed != nil {
			*p = *parsed
		} else {
			*p = Player{}
		}
		return nil
	}
	type alias Player
	var rec alias
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*p = Player(rec)
	return nil
}

// ParsePlayerString normalizes the legacy "username (country)" form into a
// Player record. Malformed input yields nil rather than an error, and
// normalizing an already-normalized string is stable.
func ParsePlayerString(s string) *Player {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	open := strings.LastIndex(s, "(")
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return nil
	}
	username := strings.TrimSpace(s[:open])
	country := strings.TrimSpace(s[open+1 : len(s)-1])
	if username == "" {
		return nil
	}
	return &Player{Username: username, Country: country}
}

// FormatPlayer renders the legacy compact form.
func FormatPlayer(p *Player) string {
	if p == nil {
		return ""
	}
	return p.Username + " (" + p.Country + ")"
}

type TradeAgreement struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	Type         string    `json:"type"`    // import | export
	Product      string    `json:"product"` // commodity | manufacture
	Value        float64   `json:"value"`
	Country      string    `json:"country"`      // owning country of this record
	Counterparty string    `json:"counterparty"` // the other side of the pair
	OriginPlayer string    `json:"originPlayer,omitempty"`
}

// TradeImpact holds the four aggregate totals a country derives from the
// ledger, split by direction and product.
type TradeImpact struct {
	CommodityImports   float64 `json:"commodityImports"`
	CommodityExports   float64 `json:"commodityExports"`
	ManufactureImports float64 `json:"manufactureImports"`
	ManufactureExports float64 `json:"manufactureExports"`
}

// CountryEconomy is the per-country aggregate. Balances and TradeStats are
// derived by recalculation and must not be set independently.
type CountryEconomy struct {
	CommodityOutput     float64     `json:"commodityOutput"`
	CommodityNeeds      float64     `json:"commodityNeeds"`
	ManufactureOutput   float64     `json:"manufactureOutput"`
	ManufactureNeeds    float64     `json:"manufactureNeeds"`
	CommoditiesBalance  float64     `json:"commoditiesBalance"`
	ManufacturesBalance float64     `json:"manufacturesBalance"`
	TradeStats          TradeImpact `json:"tradeStats"`
}

type ChatMessage struct {
	From    string    `json:"from"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
}

type Room struct {
	Name            string                     `json:"name"`
	Owner           string                     `json:"owner"`
	Players         []*Player                  `json:"players"`
	Countries       []string                   `json:"countries"`
	Chat            []ChatMessage              `json:"chat"`
	PrivateChats    map[string][]ChatMessage   `json:"privateChats"`
	CreatedAt       time.Time                  `json:"createdAt"`
	Duration        time.Duration              `json:"duration"`
	ExpiresAt       time.Time                  `json:"expiresAt"`
	Banned          map[string]struct{}        `json:"banned"`
	TradeAgreements []*TradeAgreement          `json:"tradeAgreements"`
	Settings        map[string]any             `json:"settings"`
	Economies       map[string]*CountryEconomy `json:"economies"`

	mu sync.Mutex
}

// findPlayerLocked returns the player entry for username, or nil. Callers
// hold room.mu.
func (r *Room) findPlayerLocked(username string) *Player {
	for _, p := range r.Players {
		if p.Username == username {
			return p
		}
	}
	return nil
}

// economyLocked returns the country's economy record, creating an empty one
// on first reference. Callers hold room.mu.
func (r *Room) economyLocked(country string) *CountryEconomy {
	if r.Economies == nil {
		r.Economies = make(map[string]*CountryEconomy)
	}
	eco, ok := r.Economies[country]
	if !ok {
		eco = &CountryEconomy{}
		r.Economies[country] = eco
	}
	return eco
}

// privateChatKey builds the sorted user-pair key for private histories.
func privateChatKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// RoomSummary is the lobby-listing view of a room.
type RoomSummary struct {
	Name        string        `json:"name"`
	Owner       string        `json:"owner"`
	PlayerCount int           `json:"playerCount"`
	CreatedAt   time.Time     `json:"createdAt"`
	Duration    time.Duration `json:"duration"`
	ExpiresAt   time.Time     `json:"expiresAt"`
}

// Summary snapshots the listing view under the room mutex.
func (r *Room) Summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomSummary{
		Name:        r.Name,
		Owner:       r.Owner,
		PlayerCount: len(r.Players),
		CreatedAt:   r.CreatedAt,
		Duration:    r.Duration,
		ExpiresAt:   r.ExpiresAt,
	}
}

// RoomView is the full per-client view of a room.
type RoomView struct {
	Name            string                     `json:"name"`
	Owner           string                     `json:"owner"`
	Players         []Player                   `json:"players"`
	Countries       []string                   `json:"countries"`
	CreatedAt       time.Time                  `json:"createdAt"`
	ExpiresAt       time.Time                  `json:"expiresAt"`
	TradeAgreements []TradeAgreement          `json:"tradeAgreements"`
	Economies       map[string]CountryEconomy `json:"economies"`
	Settings        map[string]any            `json:"settings"`
	Chat            []ChatMessage             `json:"chat"`
}

// View snapshots the broadcast view under the room mutex.
func (r *Room) View() RoomView {
	r.mu.Lock()
	defer r.mu.Unlock()
	view := RoomView{
		Name:      r.Name,
		Owner:     r.Owner,
		Countries: append([]string(nil), r.Countries...),
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		Settings:  r.Settings,
		Chat:      append([]ChatMessage(nil), r.Chat...),
	}
	for _, p := range r.Players {
		view.Players = append(view.Players, *p)
	}
	for _, ta := range r.TradeAgreements {
		view.TradeAgreements = append(view.TradeAgreements, *ta)
	}
	view.Economies = make(map[string]CountryEconomy, len(r.Economies))
	names := make([]string, 0, len(r.Economies))
	for name := range r.Economies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		view.Economies[name] = *r.Economies[name]
	}
	return view
}
