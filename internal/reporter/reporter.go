package reporter

import (
	"fmt"
	"io"
	"math/big"

	"amm-entrypoint-bot/internal/entrypoint"
	"amm-entrypoint-bot/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
)

// Summary 汇总交易流水中的已实现结果
type Summary struct {
	Buys        int
	Sells       int
	Redeems     int
	Spent       *big.Int // 买入花费的基础资产
	Proceeds    *big.Int // 卖出得到的基础资产
	Redeemed    *big.Int
	RealizedPnL *big.Int // Proceeds - Spent, 仅在所有买入都已卖出时有意义
}

// Summarize folds the trades into a Summary.
func Summarize(trades []models.TradeRecord) Summary {
	s := Summary{Spent: new(big.Int), Proceeds: new(big.Int), Redeemed: new(big.Int)}
	for _, tr := range trades {
		switch tr.Side {
		case models.Buy:
			s.Buys++
			s.Spent.Add(s.Spent, tr.AmountIn)
		case models.Sell:
			s.Sells++
			s.Proceeds.Add(s.Proceeds, tr.AmountOut)
		case models.Redeem:
			s.Redeems++
			s.Redeemed.Add(s.Redeemed, tr.AmountOut)
		}
	}
	s.RealizedPnL = new(big.Int).Sub(s.Proceeds, s.Spent)
	return s
}

// GenerateReport 渲染入口状态、持仓与最近交易
func GenerateReport(w io.Writer, st *entrypoint.Status, decimals int32) {
	units := func(x *big.Int) string { return models.FormatUnits(x, decimals) }

	overview := table.NewWriter()
	overview.SetOutputMirror(w)
	overview.SetTitle("Entrypoint")
	overview.SetStyle(table.StyleLight)
	overview.AppendRows([]table.Row{
		{"Router", st.Config.Router.Hex()},
		{"Base asset", st.Config.BaseAsset.Hex()},
		{"Fixed investment", units(st.Config.FixedInvestment)},
		{"Base balance", units(st.BaseBalance)},
		{"Admins", joinAddrs(st.Admins)},
		{"Bots", joinAddrs(st.Bots)},
	})
	overview.Render()

	if len(st.Positions) > 0 {
		positions := table.NewWriter()
		positions.SetOutputMirror(w)
		positions.SetTitle("Positions")
		positions.SetStyle(table.StyleLight)
		positions.AppendHeader(table.Row{"Asset", "Balance", "State", "Quote", "x Investment", "Should sell"})
		for _, p := range st.Positions {
			quote, multiple := "-", "-"
			if p.Quote != nil {
				quote = units(p.Quote)
				multiple = multipleOf(p.Quote, st.Config.FixedInvestment)
			}
			positions.AppendRow(table.Row{p.Asset.Hex(), p.Balance.String(), p.State.String(), quote, multiple, p.ShouldSell})
		}
		positions.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
		})
		positions.Render()
	}

	if len(st.RecentTrades) > 0 {
		renderTrades(w, "Recent trades", st.RecentTrades, units)
	}
}

// GenerateJournal 渲染持久化的完整交易流水
func GenerateJournal(w io.Writer, trades []models.TradeRecord, decimals int32) {
	if len(trades) == 0 {
		fmt.Fprintln(w, "trade journal is empty")
		return
	}
	renderTrades(w, fmt.Sprintf("Trade journal (%d)", len(trades)), trades, func(x *big.Int) string {
		return models.FormatUnits(x, decimals)
	})
}

func renderTrades(w io.Writer, title string, records []models.TradeRecord, units func(*big.Int) string) {
	trades := table.NewWriter()
	trades.SetOutputMirror(w)
	trades.SetTitle(title)
	trades.SetStyle(table.StyleLight)
	trades.AppendHeader(table.Row{"ID", "Time", "Side", "Caller", "In", "Out", "Tx"})
	for _, tr := range records {
		in, out := tr.AmountIn.String(), tr.AmountOut.String()
		switch tr.Side {
		case models.Buy:
			in = units(tr.AmountIn)
		case models.Sell:
			out = units(tr.AmountOut)
		case models.Redeem:
			in, out = units(tr.AmountIn), units(tr.AmountOut)
		}
		if tr.Estimated {
			out += " ~"
		}
		trades.AppendRow(table.Row{tr.ID, tr.Time.Format("2006-01-02 15:04:05"), tr.Side, shortHex(tr.Caller.Hex()), in, out, shortHex(tr.TxHash)})
	}

	s := Summarize(records)
	trades.AppendFooter(table.Row{"", "", fmt.Sprintf("%dB/%dS/%dR", s.Buys, s.Sells, s.Redeems), "PnL", units(s.RealizedPnL), "", ""})
	trades.Render()
}

// multipleOf renders quote / investment with two decimals.
func multipleOf(quote, investment *big.Int) string {
	if investment == nil || investment.Sign() == 0 {
		return "-"
	}
	return decimal.NewFromBigInt(quote, 0).Div(decimal.NewFromBigInt(investment, 0)).StringFixed(2) + "x"
}

func joinAddrs(addrs []models.Principal) string {
	if len(addrs) == 0 {
		return "-"
	}
	out := ""
	for i, a := range addrs {
		if i > 0 {
			out += "\n"
		}
		out += a.Hex()
	}
	return out
}

func shortHex(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}
