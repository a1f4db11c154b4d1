package ticket

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/sanosuguru/go-table-reservation/internal/application"
	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
)

// QRSize はQRコード画像の一辺のピクセル数
const QRSize = 300

// Issuer は決済済み予約のPDFチケットを出力ディレクトリに書き出す
type Issuer struct {
	dir string
}

// NewIssuer は出力ディレクトリを作成してIssuerを返す
func NewIssuer(dir string) (*Issuer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("チケット出力先の作成に失敗しました: %w", err)
	}
	return &Issuer{dir: dir}, nil
}

// Issue はQRコード付きのPDFを生成し、そのファイルパスを返す
func (i *Issuer) Issue(ctx context.Context, b *booking.Booking, e *event.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	qr, err := QRCodePNG(Code(b), QRSize)
	if err != nil {
		return "", err
	}
	pdf, err := RenderPDF(b, e, qr)
	if err != nil {
		return "", err
	}

	path := filepath.Join(i.dir, b.ID+".pdf")
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", fmt.Errorf("チケットの書き出しに失敗: %w", err)
	}
	return path, nil
}

// Code はQRコードに埋め込む照合用の文字列を返す
func Code(b *booking.Booking) string {
	return "booking:" + b.ID
}

// QRCodePNG は text をPNGのQRコードにする
func QRCodePNG(text string, size int) ([]byte, error) {
	qr, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("QRコード生成に失敗: %w", err)
	}
	png, err := qr.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("QRコードのPNG変換に失敗: %w", err)
	}
	return png, nil
}

// RenderPDF はA4一枚のチケットPDFを生成する
func RenderPDF(b *booking.Booking, e *event.Event, qrPNG []byte) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	imgName := "qr_" + b.ID
	pdf.RegisterImageOptionsReader(imgName, opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions(imgName, (210.0-90.0)/2, pdf.GetY(), 90, 90, false, opts, 0, "")
	pdf.Ln(95)

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 10, ascii(e.Name), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 13)
	row := func(label, value string) {
		pdf.CellFormat(40, 8, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 8, ascii(value), "", 1, "L", false, 0, "")
	}
	row("Date:", e.StartAt.Format("January 2, 2006 15:04"))
	row("Venue:", e.Venue)
	row("Guest:", b.Requester)
	for _, line := range tableLines(b, e) {
		row("Table:", line)
	}
	row("Total:", fmt.Sprintf("%d", b.TotalAmount))
	if b.PaidAt != nil {
		row("Paid at:", b.PaidAt.UTC().Format(time.RFC3339))
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 11)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, "Booking: "+b.ID, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF生成に失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// tableLines はテーブル番号順の「No.n x 席数」を返す
func tableLines(b *booking.Booking, e *event.Event) []string {
	type line struct {
		number int
		text   string
	}
	lines := make([]line, 0, len(b.Allocations))
	for _, a := range b.Allocations {
		number := 0
		if t, ok := e.Table(a.TableID); ok {
			number = t.Number
		}
		lines = append(lines, line{number: number, text: fmt.Sprintf("No.%d x %d seats", number, a.Seats)})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].number < lines[j].number })

	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.text
	}
	return out
}

// ascii は標準フォントで描けない文字を ? に置き換える
func ascii(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r > 0x7e || r < 0x20 {
			r = '?'
		}
		out = append(out, r)
	}
	return string(out)
}

var _ application.TicketIssuer = (*Issuer)(nil)
