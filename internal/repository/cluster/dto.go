package cluster

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/joelhooks/pdf-brain/internal/db"
	domcluster "github.com/joelhooks/pdf-brain/internal/domain/cluster"
)

// Hash field names.
const (
	fieldRunID       = "run_id"
	fieldLevel       = "level"
	fieldClusterID   = "cluster_id"
	fieldContent     = "__content"
	fieldVector      = "__vector"
	fieldMemberCount = "member_count"
	fieldMembers     = "member_ids"
	fieldTopics      = "key_topics"
	fieldQuote       = "quote"
	fieldConceptID   = "concept_id"
	fieldConfidence  = "confidence"
	fieldLabel       = "label"
	fieldExtractive  = "extractive"

	fieldHardCluster = "cluster"
	fieldDistance    = "distance"
	probFieldPrefix  = "p:"
)

func summaryToHash(runID string, s *domcluster.Summary) map[string]string {
	m := map[string]string{
		fieldRunID:       runID,
		fieldLevel:       strconv.Itoa(s.Level),
		fieldClusterID:   strconv.Itoa(s.ClusterID),
		fieldContent:     s.Text,
		fieldMemberCount: strconv.Itoa(s.MemberCount),
		fieldQuote:       s.RepresentativeQuote,
		fieldConceptID:   s.ConceptID,
		fieldConfidence:  strconv.FormatFloat(s.Confidence, 'g', -1, 64),
		fieldLabel:       s.SuggestedLabel,
		fieldExtractive:  strconv.FormatBool(s.Extractive),
	}
	if len(s.MemberIDs) > 0 {
		b, _ := json.Marshal(s.MemberIDs)
		m[fieldMembers] = string(b)
	}
	if len(s.KeyTopics) > 0 {
		b, _ := json.Marshal(s.KeyTopics)
		m[fieldTopics] = string(b)
	}
	if len(s.Embedding) > 0 {
		m[fieldVector] = db.EncodeVector(s.Embedding)
	}
	return m
}

func summaryFromHash(m map[string]string) (domcluster.Summary, error) {
	var s domcluster.Summary
	var err error
	if s.Level, err = strconv.Atoi(m[fieldLevel]); err != nil {
		return s, fmt.Errorf("summary level: %w", err)
	}
	if s.ClusterID, err = strconv.Atoi(m[fieldClusterID]); err != nil {
		return s, fmt.Errorf("summary cluster id: %w", err)
	}
	s.Text = m[fieldContent]
	s.MemberCount, _ = strconv.Atoi(m[fieldMemberCount])
	s.RepresentativeQuote = m[fieldQuote]
	s.ConceptID = m[fieldConceptID]
	s.Confidence, _ = strconv.ParseFloat(m[fieldConfidence], 64)
	s.SuggestedLabel = m[fieldLabel]
	s.Extractive, _ = strconv.ParseBool(m[fieldExtractive])
	if v := m[fieldMembers]; v != "" {
		if err := json.Unmarshal([]byte(v), &s.MemberIDs); err != nil {
			return s, fmt.Errorf("summary members: %w", err)
		}
	}
	if v := m[fieldTopics]; v != "" {
		if err := json.Unmarshal([]byte(v), &s.KeyTopics); err != nil {
			return s, fmt.Errorf("summary topics: %w", err)
		}
	}
	return s, nil
}

// summaryTitle labels a summary hit with its concept or suggested label.
func summaryTitle(s *domcluster.Summary) string {
	if s.ConceptID != "" {
		return s.ConceptID
	}
	return s.SuggestedLabel
}

// membershipItems builds one hash per level-0 point: its hard cluster and
// distance, plus a p:<cluster> field per soft membership.
func membershipItems(run *domcluster.Run) []db.HashSetItem {
	byPoint := make(map[string]map[string]string, len(run.Assignments))
	order := make([]string, 0, len(run.Assignments))
	fields := func(id string) map[string]string {
		m, ok := byPoint[id]
		if !ok {
			m = map[string]string{fieldRunID: run.ID}
			byPoint[id] = m
			order = append(order, id)
		}
		return m
	}

	for _, a := range run.Assignments {
		m := fields(a.PointID)
		m[fieldHardCluster] = strconv.Itoa(a.ClusterID)
		m[fieldDistance] = strconv.FormatFloat(a.Distance, 'g', -1, 64)
	}
	for _, a := range run.Soft {
		m := fields(a.PointID)
		m[probFieldPrefix+strconv.Itoa(a.ClusterID)] = strconv.FormatFloat(a.Probability, 'g', -1, 64)
	}

	items := make([]db.HashSetItem, 0, len(order))
	for _, id := range order {
		items = append(items, db.HashSetItem{Key: membershipKey(id), Fields: byPoint[id]})
	}
	return items
}
