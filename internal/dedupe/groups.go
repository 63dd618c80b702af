// Package dedupe classifies duplicate contacts into three mutually
// exclusive modes: combined (phone+email), phone-only, email-only.
package dedupe

import (
	"sort"

	"github.com/vnnovate/relations-cli/internal/model"
)

// Groups holds the classified cross-file match groups of one query.
type Groups struct {
	Combined []model.MatchGroup `json:"combined"`
	Phone    []model.MatchGroup `json:"phone"`
	Email    []model.MatchGroup `json:"email"`
}

// ByMode returns the groups of one mode.
func (g *Groups) ByMode(mode model.MatchMode) []model.MatchGroup {
	switch mode {
	case model.ModePhone:
		return g.Phone
	case model.ModeEmail:
		return g.Email
	default:
		return g.Combined
	}
}

// Counts returns the number of groups per mode.
func (g *Groups) Counts() map[model.MatchMode]int {
	return map[model.MatchMode]int{
		model.ModeCombined: len(g.Combined),
		model.ModePhone:    len(g.Phone),
		model.ModeEmail:    len(g.Email),
	}
}

type pairKey struct{ phone, email string }

// BuildGroups classifies index rows into strict match groups. A group must
// span at least two distinct datasets. Combined takes precedence: a phone or
// email value captured by any combined key is excluded from the single-field
// modes entirely, so a pair never double-counts.
func BuildGroups(rows []model.IndexRow) *Groups {
	g := &Groups{}

	byPair := make(map[pairKey][]model.IndexRow)
	byPhone := make(map[string][]model.IndexRow)
	byEmail := make(map[string][]model.IndexRow)
	for _, r := range rows {
		if r.Phone != "" && r.Email != "" {
			byPair[pairKey{r.Phone, r.Email}] = append(byPair[pairKey{r.Phone, r.Email}], r)
		}
		if r.Phone != "" {
			byPhone[r.Phone] = append(byPhone[r.Phone], r)
		}
		if r.Email != "" {
			byEmail[r.Email] = append(byEmail[r.Email], r)
		}
	}

	combinedPhones := make(map[string]struct{})
	combinedEmails := make(map[string]struct{})
	for key, grp := range byPair {
		if distinctDatasets(grp) < 2 {
			continue
		}
		combinedPhones[key.phone] = struct{}{}
		combinedEmails[key.email] = struct{}{}
		g.Combined = append(g.Combined, makeGroup(grp, model.ModeCombined, key.phone, key.email))
	}

	for phone, grp := range byPhone {
		if distinctDatasets(grp) < 2 {
			continue
		}
		if _, taken := combinedPhones[phone]; taken {
			continue
		}
		g.Phone = append(g.Phone, makeGroup(grp, model.ModePhone, phone, ""))
	}

	for email, grp := range byEmail {
		if distinctDatasets(grp) < 2 {
			continue
		}
		if _, taken := combinedEmails[email]; taken {
			continue
		}
		g.Email = append(g.Email, makeGroup(grp, model.ModeEmail, "", email))
	}

	sortGroups(g.Combined)
	sortGroups(g.Phone)
	sortGroups(g.Email)
	return g
}

func distinctDatasets(rows []model.IndexRow) int {
	seen := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		seen[r.DatasetID] = struct{}{}
	}
	return len(seen)
}

func makeGroup(rows []model.IndexRow, mode model.MatchMode, phone, email string) model.MatchGroup {
	grp := model.MatchGroup{
		Mode:         mode,
		Phone:        phone,
		Email:        email,
		TotalRecords: len(rows),
	}
	seenDS := make(map[int64]struct{})
	seenOwner := make(map[int64]struct{})
	seenName := make(map[string]struct{})
	for _, r := range rows {
		if _, ok := seenDS[r.DatasetID]; !ok {
			seenDS[r.DatasetID] = struct{}{}
			grp.DatasetIDs = append(grp.DatasetIDs, r.DatasetID)
		}
		if _, ok := seenOwner[r.OwnerID]; !ok {
			seenOwner[r.OwnerID] = struct{}{}
			grp.OwnerIDs = append(grp.OwnerIDs, r.OwnerID)
		}
		if r.Name != "" {
			if _, ok := seenName[r.Name]; !ok {
				seenName[r.Name] = struct{}{}
				grp.Names = append(grp.Names, r.Name)
			}
		}
	}
	return grp
}

// sortGroups orders by descending record count, then by key, so paginated
// output is stable across recomputation.
func sortGroups(groups []model.MatchGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].TotalRecords != groups[j].TotalRecords {
			return groups[i].TotalRecords > groups[j].TotalRecords
		}
		if groups[i].Phone != groups[j].Phone {
			return groups[i].Phone < groups[j].Phone
		}
		return groups[i].Email < groups[j].Email
	})
}

// FilterCrossTenant drops groups whose rows all belong to one owner. It is a
// post-filter: the stored index never bakes tenancy into group keys.
func FilterCrossTenant(groups []model.MatchGroup) []model.MatchGroup {
	out := make([]model.MatchGroup, 0, len(groups))
	for _, g := range groups {
		if g.CrossTenant() {
			out = append(out, g)
		}
	}
	return out
}
