package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/NordicHPC/sonar/internal/aggregate"
)

// Summary is the ranked, cutoff-filtered view of one accumulator. All
// percentages are relative to the combined (mapped + unmapped) grand totals;
// CPU load and reserved cores keep separate denominators throughout.
type Summary struct {
	NoData          bool       `json:"no_data"`
	CutoffPercent   float64    `json:"cutoff_percent"`
	TotalLoad       float64    `json:"total_load"`
	TotalReserved   int        `json:"total_reserved"`
	Applications    []AppUsage `json:"applications"`
	UnmappedLoad    float64    `json:"unmapped_load_percent"`
	UnmappedReserve float64    `json:"unmapped_reserve_percent"`
	UnmappedByProc  []AppUsage `json:"unmapped_processes"`
}

type AppUsage struct {
	Name           string      `json:"name"`
	LoadPercent    float64     `json:"load_percent"`
	ReservePercent float64     `json:"reserve_percent"`
	TopUsers       []UserUsage `json:"top_users"`
}

type UserUsage struct {
	Name           string          `json:"name"`
	LoadPercent    float64         `json:"load_percent"`
	ReservePercent float64         `json:"reserve_percent"`
	CoresRequested aggregate.Range `json:"cores_requested"`
	MemRequestedMB aggregate.Range `json:"mem_requested_mb"`
}

const topUsersShown = 2

// Summarize ranks both namespaces of acc by reserved-core totals and applies
// the percentage cutoff. The unmapped section's totals are always reported,
// even below the cutoff; only its per-process rows are filtered.
func Summarize(acc *aggregate.Accumulator, cutoffPercent float64) *Summary {
	s := &Summary{CutoffPercent: cutoffPercent}

	for _, u := range []aggregate.Usage{acc.Mapped, acc.Unmapped} {
		for _, load := range u.CPULoad {
			s.TotalLoad += load
		}
		for _, n := range u.CPUReserved {
			s.TotalReserved += n
		}
	}
	if s.TotalLoad == 0 && s.TotalReserved == 0 {
		s.NoData = true
		return s
	}

	s.Applications = rankUsage(acc.Mapped, s)
	for _, load := range acc.Unmapped.CPULoad {
		s.UnmappedLoad += s.loadPercent(load)
	}
	var unmappedReserved int
	for _, n := range acc.Unmapped.CPUReserved {
		unmappedReserved += n
	}
	s.UnmappedReserve = s.reservePercent(unmappedReserved)
	s.UnmappedByProc = rankUsage(acc.Unmapped, s)

	return s
}

func (s *Summary) loadPercent(load float64) float64 {
	if s.TotalLoad == 0 {
		return 0
	}
	return 100 * load / s.TotalLoad
}

func (s *Summary) reservePercent(reserved int) float64 {
	if s.TotalReserved == 0 {
		return 0
	}
	return 100 * float64(reserved) / float64(s.TotalReserved)
}

func rankUsage(u aggregate.Usage, s *Summary) []AppUsage {
	appLoad := make(map[string]float64)
	appReserved := make(map[string]int)
	appUsers := make(map[string]map[string]bool)

	record := func(k aggregate.Key) {
		if appUsers[k.App] == nil {
			appUsers[k.App] = make(map[string]bool)
		}
		appUsers[k.App][k.User] = true
	}
	for k, load := range u.CPULoad {
		appLoad[k.App] += load
		record(k)
	}
	for k, n := range u.CPUReserved {
		appReserved[k.App] += n
		record(k)
	}

	apps := make([]string, 0, len(appUsers))
	for app := range appUsers {
		apps = append(apps, app)
	}
	sort.SliceStable(apps, func(i, j int) bool {
		return appReserved[apps[i]] > appReserved[apps[j]]
	})

	var out []AppUsage
	for _, app := range apps {
		reservePct := s.reservePercent(appReserved[app])
		// Strictly above the cutoff; a row exactly on the boundary is excluded.
		if !(reservePct > s.CutoffPercent) {
			continue
		}
		out = append(out, AppUsage{
			Name:           app,
			LoadPercent:    s.loadPercent(appLoad[app]),
			ReservePercent: reservePct,
			TopUsers:       topUsers(u, app, appUsers[app], s),
		})
	}
	return out
}

func topUsers(u aggregate.Usage, app string, users map[string]bool, s *Summary) []UserUsage {
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		return u.CPUReserved[aggregate.Key{App: app, User: names[i]}] >
			u.CPUReserved[aggregate.Key{App: app, User: names[j]}]
	})
	if len(names) > topUsersShown {
		names = names[:topUsersShown]
	}

	out := make([]UserUsage, 0, len(names))
	for _, name := range names {
		k := aggregate.Key{App: app, User: name}
		out = append(out, UserUsage{
			Name:           name,
			LoadPercent:    s.loadPercent(u.CPULoad[k]),
			ReservePercent: s.reservePercent(u.CPUReserved[k]),
			CoresRequested: u.CoresRequested[k],
			MemRequestedMB: u.MemRequested[k],
		})
	}
	return out
}

// WriteSummary renders s as the interactive text report.
func WriteSummary(w io.Writer, s *Summary) error {
	if s.NoData {
		_, err := fmt.Fprintln(w, "No data in the selected range.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "Application usage, cutoff %.2f%%\n", s.CutoffPercent)
	fmt.Fprintf(tw, "app\tload%%\treserve%%\n")
	writeUsageRows(tw, s.Applications)

	fmt.Fprintf(tw, "\nUnmapped processes\tload %.2f%%\treserve %.2f%%\n", s.UnmappedLoad, s.UnmappedReserve)
	writeUsageRows(tw, s.UnmappedByProc)

	return tw.Flush()
}

func writeUsageRows(w io.Writer, apps []AppUsage) {
	for _, app := range apps {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", app.Name, app.LoadPercent, app.ReservePercent)
		for _, user := range app.TopUsers {
			fmt.Fprintf(w, "    %s\t%.2f\t%.2f\tcores %s\tmem %s MB\n",
				user.Name, user.LoadPercent, user.ReservePercent,
				formatRange(user.CoresRequested), formatRange(user.MemRequestedMB))
		}
	}
}

func formatRange(r aggregate.Range) string {
	if !r.Set {
		return "-"
	}
	return fmt.Sprintf("[%g,%g]", r.Min, r.Max)
}
