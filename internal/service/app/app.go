package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"ticket_ledger/internal/cryptographic/hash"
	"ticket_ledger/internal/model"
	"ticket_ledger/internal/utils/log"
)

type (
	// App is the inbox a party watches: every notification is fetched,
	// opened locally and proof-checked before it is shown.
	App struct {
		app   *tview.Application
		inbox *tview.TextView
		input *tview.InputField

		client *Client
		party  *PartyInfo
		secret []byte

		mu       sync.Mutex
		anchored *hash.Hash

		conn *websocket.Conn
	}
)

func NewApp(client *Client, party *PartyInfo, secret []byte) *App {
	return &App{
		app:    tview.NewApplication(),
		client: client,
		party:  party,
		secret: secret,
	}
}

func (c *App) Run(ctx context.Context) error {
	conn, err := c.client.Dial(ctx, c.party.PublicID, c.secret)
	if err != nil {
		return fmt.Errorf("connect notifications: %w", err)
	}
	c.conn = conn

	go c.listenOnSocket(ctx)
	return c.renderUI()
}

func (c *App) Stop() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.app.Stop()
}

// blocking function
func (c *App) renderUI() error {
	c.inbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.inbox.SetBorder(true).SetTitle(fmt.Sprintf(" Inbox of %s ", c.party.Name))

	c.input = tview.NewInputField().
		SetLabel("Anchored root: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" Check proofs against (empty = gateway root) ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		fmt.Fprintln(c.inbox, c.setAnchored(strings.TrimSpace(c.input.GetText())))
		c.input.SetText("")
		c.inbox.ScrollToEnd()
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.inbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	return c.app.SetRoot(layout, true).SetFocus(c.input).Run()
}

// setAnchored runs on the UI goroutine and returns the line to show.
func (c *App) setAnchored(text string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if text == "" {
		c.anchored = nil
		return "[gray]checking against the gateway root[-]"
	}
	root, err := hash.Parse(text)
	if err != nil {
		return fmt.Sprintf("[red]%v[-]", err)
	}
	c.anchored = &root
	return fmt.Sprintf("[gray]checking against anchored root %s[-]", root)
}

func (c *App) listenOnSocket(ctx context.Context) {
	for {
		var n model.Notification
		if err := c.conn.ReadJSON(&n); err != nil {
			log.Debug("notification socket closed", zap.Error(err))
			c.conn.Close()
			c.app.QueueUpdateDraw(func() {
				fmt.Fprintf(c.inbox, "[red]disconnected: %v[-]\n", err)
			})
			return
		}

		c.mu.Lock()
		anchored := c.anchored
		c.mu.Unlock()

		receipt, err := Inspect(ctx, c.client, c.secret, n.TicketID, n.MessageID, anchored)
		if err != nil {
			c.print(fmt.Sprintf("[red]%s/%s: %v[-]", n.TicketID, n.MessageID, err))
			continue
		}
		c.print(FormatReceipt(receipt))
	}
}

func (c *App) print(line string) {
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintln(c.inbox, line)
		c.inbox.ScrollToEnd()
	})
}

// FormatReceipt renders a receipt as one tview colour-tagged line.
func FormatReceipt(r *Receipt) string {
	status := "[green]included[-]"
	switch {
	case !r.Included:
		status = "[red]NOT included[-]"
	case r.RootMismatch:
		status = "[yellow]included, gateway root moved[-]"
	}

	parent := "root"
	if r.Message.ParentID != nil {
		parent = "parent " + *r.Message.ParentID
	}
	return fmt.Sprintf("[yellow]%s[-] #%s (%s) %s digest %s: %s",
		r.Message.TicketID, r.Message.ID, parent, r.Schema, r.Message.Digest, status)
}
