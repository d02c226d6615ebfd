package realm

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/types"
)

const (
	cyan        = "\033[38;2;86;182;194m"  // One Dark Cyan: #56B6C2
	cyanBright  = "\033[38;2;97;228;240m"  // Brighter Cyan: #61E4F0
	dimCyan     = "\033[38;2;47;91;102m"   // Dim Cyan: #2F5B66
	grey        = "\033[38;2;110;118;129m" // Brighter Grey: #6E7681
	dimGrey     = "\033[38;2;75;82;99m"    // Darker Grey: #4B5263
	success     = "\033[38;2;62;130;144m"  // Dim Cyan: #3E8290
	warning     = "\033[38;2;229;192;123m" // One Dark Yellow: #E5C07B
	errorRed    = "\033[38;2;224;108;117m" // One Dark Red: #E06C75
	white       = "\033[38;2;171;178;191m" // One Dark Foreground: #ABB2BF
	whiteBright = "\033[38;2;220;225;230m" // Brighter White
	reset       = "\033[0m"
	bold        = "\033[1m"
)

// Reporter prints human-readable realm cache reports to a terminal.
type Reporter struct {
	manager *Manager
	out     io.Writer
}

func NewReporter(manager *Manager, out io.Writer) *Reporter {
	return &Reporter{manager: manager, out: out}
}

func (r *Reporter) LogStage(message string, args ...any) {
	fmt.Fprintf(r.out, "%s%s✦ %s%s%s\n", success, bold, grey, fmt.Sprintf(message, args...), reset)
}

func (r *Reporter) LogSuccess(message string, args ...any) {
	fmt.Fprintf(r.out, "%s%s✦ %s%s%s\n", success, bold, white, fmt.Sprintf(message, args...), reset)
}

func (r *Reporter) LogWarning(message string, args ...any) {
	fmt.Fprintf(r.out, "%s%s⚠ WARNING: %s%s%s\n", bold, warning, grey, fmt.Sprintf(message, args...), reset)
}

func (r *Reporter) LogInfo(message string, args ...any) {
	fmt.Fprintf(r.out, "%s▶ %s%s%s\n", dimGrey, grey, fmt.Sprintf(message, args...), reset)
}

// WriteRealmReport prints one realm: its DAM entries and collection sizes.
func (r *Reporter) WriteRealmReport(name string) {
	fmt.Fprint(r.out, r.RealmReport(name))
}

// RealmReport renders the report WriteRealmReport prints.
func (r *Reporter) RealmReport(name string) string {
	var report strings.Builder
	timestamp := time.Now().UTC().Format("2006-01-02 15:04:05 MST")
	report.WriteString(fmt.Sprintf("%s%s▓ %s | Realm: %s%s %s\n", bold, dimCyan, timestamp, whiteBright, name, reset))

	ctx, ok := r.manager.Lookup(name)
	if !ok {
		report.WriteString(fmt.Sprintf("%s○ %snot active%s\n", dimGrey, grey, reset))
		return report.String()
	}

	report.WriteString(fmt.Sprintf("%s✦ %sidle: %s%v %ssubscribers: %s%d%s\n",
		success, grey, white, time.Since(ctx.LastAccessed()).Round(time.Second), grey, white, ctx.Store.SubscriberCount(), reset))

	snapshot := ctx.Store.Snapshot()
	for _, st := range ctx.Store.Statuses() {
		var line strings.Builder
		switch st.Status {
		case types.StatusLoaded:
			line.WriteString(fmt.Sprintf("%s✦ %s%s: %sLOADED%s", success, grey, st.DamID, cyanBright, reset))
		case types.StatusLoading:
			line.WriteString(fmt.Sprintf("%s○ %s%s: %sLOADING%s", dimGrey, grey, st.DamID, cyan, reset))
		case types.StatusFailed:
			line.WriteString(fmt.Sprintf("%s✖ %s%s: %sFAILED%s", errorRed, grey, st.DamID, errorRed, reset))
		default:
			line.WriteString(fmt.Sprintf("%s○ %s%s: %s--%s", dimGrey, grey, st.DamID, dimGrey, reset))
		}
		for _, collection := range ctx.CollectionNames() {
			n := snapshot.Collection(st.DamID, collection).Len()
			if n > 0 {
				line.WriteString(fmt.Sprintf(" %s%s:%s%d", dimCyan, collection, cyan, n))
			} else {
				line.WriteString(fmt.Sprintf(" %s%s:%s--", dimGrey, collection, dimGrey))
			}
		}
		report.WriteString(line.String() + reset + "\n")
	}
	return report.String()
}
