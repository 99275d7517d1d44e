package store

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/models"
)

type csvCandle struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

type csvSignal struct {
	Date     string `csv:"date"`
	Signal   string `csv:"signal"`
	Strength string `csv:"strength"`
}

type csvTrade struct {
	Period     int    `csv:"period"`
	Date       string `csv:"date"`
	Symbol     string `csv:"symbol"`
	Side       string `csv:"side"`
	Price      string `csv:"price"`
	Quantity   int64  `csv:"quantity"`
	Gross      string `csv:"gross"`
	Commission string `csv:"commission"`
	Tax        string `csv:"tax"`
	Reason     string `csv:"reason"`
}

type csvEquity struct {
	Period int     `csv:"period"`
	Date   string  `csv:"date"`
	Cash   float64 `csv:"cash"`
	Equity float64 `csv:"equity"`
}

// headerAliases maps column names used by common data vendors to ours.
var headerAliases = map[string]string{
	"trade_date": "date",
	"datetime":   "date",
	"timestamp":  "date",
	"time":       "date",
	"vol":        "volume",
	"action":     "signal",
}

var dateLayouts = []string{
	time.DateOnly,
	"20060102",
	"2006/01/02",
	time.DateTime,
	time.RFC3339,
}

// LoadCandlesCSV reads bars with columns date, open, high, low, close and
// volume. Header names are case-insensitive. Bars are returned in time order.
// Suspended days (NaN close, or every price empty) are dropped; any other
// non-finite or non-positive price is an error.
func LoadCandlesCSV(r io.Reader) ([]models.Candle, error) {
	data, err := normalizeHeader(r)
	if err != nil {
		return nil, err
	}

	var rows []*csvCandle
	if err := gocsv.Unmarshal(bytes.NewReader(data), &rows); err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperrors.NewDataError("csv", "", "no rows", apperrors.ErrInsufficientData)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		ts, err := parseDate(row.Date)
		if err != nil {
			return nil, apperrors.NewDataError("csv", "", fmt.Sprintf("row %d: %v", i+2, err), apperrors.ErrIncompletePriceData)
		}
		if suspended(row) {
			continue
		}
		if err := checkPrices(row); err != nil {
			return nil, apperrors.NewDataError("csv", "", fmt.Sprintf("row %d: %v", i+2, err), apperrors.ErrIncompletePriceData)
		}
		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    int64(math.Round(row.Volume)),
		})
	}

	if len(candles) == 0 {
		return nil, apperrors.NewDataError("csv", "", "every row is suspended", apperrors.ErrInsufficientData)
	}

	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp.Equal(candles[i-1].Timestamp) {
			return nil, apperrors.NewDataError("csv", "",
				"duplicate bar at "+candles[i].Timestamp.Format(time.DateOnly), apperrors.ErrIncompletePriceData)
		}
	}
	return candles, nil
}

// suspended reports rows vendors write for days without trading. Empty
// cells parse as 0.
func suspended(row *csvCandle) bool {
	if math.IsNaN(row.Close) {
		return true
	}
	return row.Open == 0 && row.High == 0 && row.Low == 0 && row.Close == 0
}

func checkPrices(row *csvCandle) error {
	for _, p := range []struct {
		name  string
		value float64
	}{{"open", row.Open}, {"high", row.High}, {"low", row.Low}, {"close", row.Close}} {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%s is %v", p.name, p.value)
		}
	}
	if row.Close <= 0 {
		return fmt.Errorf("close is %v", row.Close)
	}
	if math.IsNaN(row.Volume) || math.IsInf(row.Volume, 0) {
		return fmt.Errorf("volume is %v", row.Volume)
	}
	return nil
}

// LoadSignalsCSV reads precomputed signals with columns date, signal (BUY,
// SELL, SELL_ALL or HOLD) and an optional strength in [0, 1].
func LoadSignalsCSV(r io.Reader) (map[time.Time]models.Signal, error) {
	data, err := normalizeHeader(r)
	if err != nil {
		return nil, err
	}

	var rows []*csvSignal
	if err := gocsv.Unmarshal(bytes.NewReader(data), &rows); err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperrors.NewDataError("csv", "", "no rows", apperrors.ErrInsufficientData)
	}

	signals := make(map[time.Time]models.Signal, len(rows))
	for i, row := range rows {
		line := i + 2
		ts, err := parseDate(row.Date)
		if err != nil {
			return nil, apperrors.NewValidationError("date", row.Date, fmt.Sprintf("row %d: %v", line, err))
		}
		action, err := models.ParseAction(row.Signal)
		if err != nil {
			return nil, apperrors.NewValidationError("signal", row.Signal, fmt.Sprintf("row %d: %v", line, err))
		}
		signal := models.Signal{Action: action}
		if raw := strings.TrimSpace(row.Strength); raw != "" {
			strength, err := strconv.ParseFloat(raw, 64)
			if err != nil || !(strength >= 0 && strength <= 1) {
				return nil, apperrors.NewValidationError("strength", row.Strength, fmt.Sprintf("row %d: must be in [0, 1]", line))
			}
			signal = signal.WithStrength(strength)
		}
		if _, dup := signals[ts]; dup {
			return nil, apperrors.NewValidationError("date", row.Date, fmt.Sprintf("row %d: second signal for the same bar", line))
		}
		signals[ts] = signal
	}
	return signals, nil
}

// WriteTradesCSV writes a trade log with decimal money columns.
func WriteTradesCSV(w io.Writer, trades []models.Trade) error {
	rows := make([]*csvTrade, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, &csvTrade{
			Period:     t.Period,
			Date:       formatDate(t.Timestamp),
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			Price:      t.Price.String(),
			Quantity:   t.Quantity,
			Gross:      t.Gross.StringFixed(2),
			Commission: t.Commission.StringFixed(2),
			Tax:        t.Tax.StringFixed(2),
			Reason:     t.Reason,
		})
	}
	return gocsv.Marshal(&rows, w)
}

// WriteEquityCSV writes an equity curve.
func WriteEquityCSV(w io.Writer, curve []models.EquityPoint) error {
	rows := make([]*csvEquity, 0, len(curve))
	for _, p := range curve {
		rows = append(rows, &csvEquity{
			Period: p.Period,
			Date:   formatDate(p.Timestamp),
			Cash:   p.Cash,
			Equity: p.Equity,
		})
	}
	return gocsv.Marshal(&rows, w)
}

// normalizeHeader lowercases and trims the header line and applies
// headerAliases, leaving the data rows untouched.
func normalizeHeader(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	header = strings.TrimPrefix(header, "\ufeff")
	if strings.TrimSpace(header) == "" {
		return nil, apperrors.NewDataError("csv", "", "empty input", apperrors.ErrInsufficientData)
	}

	cols := strings.Split(strings.TrimRight(header, "\r\n"), ",")
	for i, c := range cols {
		c = strings.ToLower(strings.TrimSpace(c))
		if alias, ok := headerAliases[c]; ok {
			c = alias
		}
		cols[i] = c
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(strings.Join(cols, ","))
	buf.WriteByte('\n')
	buf.Write(rest)
	return buf.Bytes(), nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func formatDate(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}
