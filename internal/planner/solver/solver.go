// Package solver implements the Enhanced VRPTW Solver (C3): a single-day,
// single-vehicle schedule over PlanNodes with hard/soft nodes, disjunctions,
// multiple time windows, and a lunch break, produced by a deterministic
// greedy construction followed by a timeline/diagnostics post-processing
// pass.
package solver

import (
	"context"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/config"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/explain"
)

var log = logrus.WithField("component", "solver")

// window is a parsed, minutes-since-midnight time window.
type window struct {
	open, close float64
}

// candidate is one schedulable entry: either an untouched PlanNode (single
// or no time window) or one virtual expansion of a multi-window node.
type candidate struct {
	node   planner.PlanNode
	win    window
	hasWin bool // false only for nodes with zero time windows (closed day)
}

// Solve runs the full VRPTW construction + post-processing pass. matrix must
// have been built (timematrix.Builder) over req.Nodes in exactly that order;
// a virtual node created by multi-window expansion looks up travel times
// under its origin's index, since it shares the origin's geo.
func Solve(ctx context.Context, req planner.PlanRequest, matrix *planner.RobustTimeMatrix) (*planner.OptimizationResult, error) {
	_ = ctx // the greedy core is CPU-bound and never suspends (§5); ctx is accepted for call-site symmetry with the rest of the pipeline.

	transport, weights := config.ApplyPacing(req.Pacing, req.Transport, req.ObjectiveWeights)
	req.Transport = transport
	req.ObjectiveWeights = weights

	dayStart, err := parseHHMM(req.DayBoundary.Open)
	if err != nil {
		return nil, err
	}
	dayEnd, err := parseHHMM(req.DayBoundary.Close)
	if err != nil {
		return nil, err
	}

	idIndex := make(map[string]int, len(req.Nodes))
	for i, n := range req.Nodes {
		idIndex[n.ID] = i
	}

	hardCount := 0
	for _, n := range req.Nodes {
		if n.Constraints.IsHardNode {
			hardCount++
		}
	}

	s := &session{
		req:       req,
		matrix:    matrix,
		idIndex:   idIndex,
		dayStart:  dayStart,
		dayEnd:    dayEnd,
		hardCount: hardCount,
		current:   dayStart,
		visitedGroups: map[string]bool{},
		dropped:   map[string]planner.DroppedNode{},
	}

	// Pre-processing step 2: early-departure gate.
	if req.Lifestyle.EarliestFirstStop != "" {
		if infeasible, requiredDeparture := s.earlyDepartureConflict(); infeasible {
			return s.earlyDepartureResult(requiredDeparture), nil
		}
	}

	// Pre-processing steps 3-4: multi-window expansion + disjunction map.
	candidates := expand(req.Nodes)
	hardGroups, softGroups := partitionByHardness(candidates, req.Nodes)

	// Construction step 1: hard nodes first, in input order.
	if ok := s.visitHardGroups(hardGroups); !ok {
		return s.finish(true), nil
	}

	// Construction step 2: lunch break.
	s.maybeInsertLunch()

	// Construction step 3: soft-node loop.
	s.visitSoftLoop(softGroups)

	// Construction step 4 + post-processing: remaining nodes become drops.
	return s.finish(false), nil
}

// session carries all mutable state across one Solve call.
type session struct {
	req     planner.PlanRequest
	matrix  *planner.RobustTimeMatrix
	idIndex map[string]int

	dayStart, dayEnd float64
	hardCount        int

	current float64

	visitedGroups map[string]bool
	route         []visit
	lunch         *lunchVisit

	dropped map[string]planner.DroppedNode // originalID -> drop
}

type visit struct {
	node         planner.PlanNode
	arrival      float64
	startService float64
	endService   float64
	wait         float64
	travel       float64
}

type lunchVisit struct {
	start, end float64
}

func (s *session) travelMinutes(from, to planner.PlanNode) float64 {
	fi, ok1 := s.idIndex[from.OriginOrSelfID()]
	ti, ok2 := s.idIndex[to.OriginOrSelfID()]
	if !ok1 || !ok2 {
		return 0
	}
	return s.matrix.Matrix[fi][ti]
}

func (s *session) idealMinutes(from, to planner.PlanNode) float64 {
	fi, ok1 := s.idIndex[from.OriginOrSelfID()]
	ti, ok2 := s.idIndex[to.OriginOrSelfID()]
	if !ok1 || !ok2 {
		return 0
	}
	return s.matrix.IdealMinutes(fi, ti)
}

// lastVisitedNode returns the node the vehicle currently sits at, or nil if
// nothing has been visited yet.
func (s *session) lastVisitedNode() *planner.PlanNode {
	if len(s.route) == 0 {
		return nil
	}
	return &s.route[len(s.route)-1].node
}

func (s *session) travelFromCurrent(to planner.PlanNode) float64 {
	last := s.lastVisitedNode()
	if last == nil {
		return 0
	}
	return s.travelMinutes(*last, to)
}

func (s *session) idealFromCurrent(to planner.PlanNode) float64 {
	last := s.lastVisitedNode()
	if last == nil {
		return 0
	}
	return s.idealMinutes(*last, to)
}

// earlyDepartureConflict implements §4.3 pre-processing step 2.
func (s *session) earlyDepartureConflict() (bool, string) {
	earliest, err := parseHHMM(s.req.Lifestyle.EarliestFirstStop)
	if err != nil {
		log.WithError(err).Warn("invalid earliestFirstStop, skipping gate")
		return false, ""
	}
	requiredDeparture := ""
	conflict := false
	for _, n := range s.req.Nodes {
		if !n.Constraints.IsHardNode || len(n.TimeWindows) == 0 {
			continue
		}
		minOpen := float64(1 << 30)
		for _, w := range n.TimeWindows {
			o, err := parseHHMM(w.Open)
			if err != nil {
				continue
			}
			if o < minOpen {
				minOpen = o
			}
		}
		if minOpen < earliest {
			conflict = true
			requiredDeparture = formatHHMM(minOpen)
			break
		}
	}
	return conflict, requiredDeparture
}

func (s *session) earlyDepartureResult(requiredDeparture string) *planner.OptimizationResult {
	effectiveEarliest := s.req.Lifestyle.EarliestFirstStop
	for _, n := range s.req.Nodes {
		code := planner.ReasonHardNodeProtection
		if n.Constraints.IsHardNode {
			code = planner.ReasonEarlyDepartureConflict
		}
		s.drop(n, code, explain.Context{
			RequiredDeparture: requiredDeparture,
			EffectiveEarliest: effectiveEarliest,
			HardNodeCount:     s.hardCount,
		})
	}
	return s.buildResult(planner.StatusInfeasible)
}

// expand implements §4.3 pre-processing steps 3-4: every node with more than
// one time window becomes one virtual node per window, all sharing
// disjunctionGroupId = originalId. Nodes with 0 or 1 windows pass through.
func expand(nodes []planner.PlanNode) []candidate {
	var out []candidate
	for _, n := range nodes {
		if len(n.TimeWindows) == 0 {
			out = append(out, candidate{node: n, hasWin: false})
			continue
		}
		if len(n.TimeWindows) == 1 {
			w, err := toWindow(n.TimeWindows[0])
			if err != nil {
				out = append(out, candidate{node: n, hasWin: false})
				continue
			}
			out = append(out, candidate{node: n, win: w, hasWin: true})
			continue
		}
		for i, tw := range n.TimeWindows {
			w, err := toWindow(tw)
			if err != nil {
				continue
			}
			virtual := n
			virtual.ID = n.ID + "#" + strconv.Itoa(i)
			virtual.TimeWindows = []planner.TimeWindow{tw}
			virtual.Meta.OriginID = n.ID
			virtual.Meta.DisjunctionGroupID = n.ID
			out = append(out, candidate{node: virtual, win: w, hasWin: true})
		}
	}
	return out
}

func toWindow(tw planner.TimeWindow) (window, error) {
	o, err := parseHHMM(tw.Open)
	if err != nil {
		return window{}, err
	}
	c, err := parseHHMM(tw.Close)
	if err != nil {
		return window{}, err
	}
	return window{open: o, close: c}, nil
}

// group is one schedulable unit: a single candidate, or (for expanded nodes)
// the set of virtual candidates sharing a disjunction group.
type group struct {
	originalID string
	isHard     bool
	members    []candidate
}

func partitionByHardness(candidates []candidate, originals []planner.PlanNode) (hard, soft []group) {
	byOriginal := map[string][]candidate{}
	for _, c := range candidates {
		oid := c.node.OriginOrSelfID()
		byOriginal[oid] = append(byOriginal[oid], c)
	}
	// preserve input order of `originals`, not candidate emission order
	for _, n := range originals {
		members := byOriginal[n.ID]
		if members == nil {
			continue
		}
		g := group{originalID: n.ID, isHard: n.Constraints.IsHardNode, members: members}
		if g.isHard {
			hard = append(hard, g)
		} else {
			soft = append(soft, g)
		}
	}
	return hard, soft
}

// visitHardGroups implements construction step 1. Returns false if any hard
// node could not be visited (the whole solve must abort as INFEASIBLE).
func (s *session) visitHardGroups(groups []group) bool {
	for _, g := range groups {
		if s.visitedGroups[g.originalID] {
			continue
		}
		member, ok := s.firstVisitable(g.members)
		if !ok {
			s.failHardGroup(g)
			return false
		}
		s.commit(member)
	}
	return true
}

// firstVisitable returns the first (window-order) visitable candidate in a
// group, and whether one was found. A candidate with no time windows
// ("closed day") is never visitable.
func (s *session) firstVisitable(members []candidate) (candidate, bool) {
	for _, c := range members {
		if !c.hasWin {
			continue
		}
		if s.isVisitable(c) {
			return c, true
		}
	}
	return candidate{}, false
}

func (s *session) isVisitable(c candidate) bool {
	travel := s.travelFromCurrent(c.node)
	arrival := s.current + travel
	if arrival > c.win.close {
		return false
	}
	start := arrival
	if c.win.open > start {
		start = c.win.open
	}
	if start > c.win.close {
		return false
	}
	if start+c.node.ServiceDurationMin > s.dayEnd {
		return false
	}
	return true
}

func (s *session) commit(c candidate) {
	travel := s.travelFromCurrent(c.node)
	arrival := s.current + travel
	start := arrival
	if c.win.open > start {
		start = c.win.open
	}
	wait := start - arrival
	if wait < 0 {
		wait = 0
	}
	end := start + c.node.ServiceDurationMin

	s.route = append(s.route, visit{
		node:         c.node,
		arrival:      arrival,
		startService: start,
		endService:   end,
		wait:         wait,
		travel:       travel,
	})
	s.current = end
	s.visitedGroups[c.node.OriginOrSelfID()] = true
}

// failHardGroup records the direct drop reason for a hard node that could
// not be visited under any of its windows, using its first window (or the
// node itself, for a closed-day node) for the classification facts.
func (s *session) failHardGroup(g group) {
	if len(g.members) == 0 {
		return
	}
	rep := g.members[0]
	if !rep.hasWin {
		s.drop(rep.node, planner.ReasonClosedDay, explain.Context{})
		return
	}
	code, ctx := s.classify(rep)
	s.drop(rep.node, code, ctx)
}

// maybeInsertLunch implements construction step 2.
func (s *session) maybeInsertLunch() {
	lunch := s.req.Lunch
	if !lunch.Enabled {
		return
	}
	open, err1 := parseHHMM(lunch.Window.Open)
	close_, err2 := parseHHMM(lunch.Window.Close)
	if err1 != nil || err2 != nil {
		return
	}
	if s.current < open || s.current > close_ {
		return
	}
	if s.current+lunch.DurationMin > close_ {
		return
	}
	start := s.current
	if open > start {
		start = open
	}
	end := start + lunch.DurationMin
	s.lunch = &lunchVisit{start: start, end: end}
	s.current = end
}

// visitSoftLoop implements construction step 3.
func (s *session) visitSoftLoop(groups []group) {
	weights := s.req.ObjectiveWeights
	for s.current < s.dayEnd {
		bestScore := 0.0
		var best *candidate
		var bestGroup string
		haveBest := false

		for gi := range groups {
			g := groups[gi]
			if s.visitedGroups[g.originalID] {
				continue
			}
			for mi := range g.members {
				c := g.members[mi]
				if !c.hasWin {
					continue
				}
				if !s.isVisitable(c) {
					continue
				}
				travel := s.travelFromCurrent(c.node)
				arrival := s.current + travel
				start := arrival
				if c.win.open > start {
					start = c.win.open
				}
				wait := start - arrival
				if wait < 0 {
					wait = 0
				}
				reward := 0.0
				if c.node.Constraints.Reward != nil {
					reward = *c.node.Constraints.Reward
				}
				score := reward*weights.Reward - travel*weights.Travel - wait*weights.Wait
				if !haveBest || score > bestScore || (score == bestScore && c.node.ID < best.node.ID) {
					cc := c
					bestScore = score
					best = &cc
					bestGroup = g.originalID
					haveBest = true
				}
			}
		}
		if !haveBest {
			break
		}
		s.commit(*best)
		s.visitedGroups[bestGroup] = true
	}
}

// classify implements §4.3 post-processing step 3's drop-reason priority
// ladder, evaluated hypothetically: what would happen if we tried to visit
// this candidate right now, from wherever the vehicle currently sits.
func (s *session) classify(c candidate) (planner.DropReasonCode, explain.Context) {
	travel := s.travelFromCurrent(c.node)
	ideal := s.idealFromCurrent(c.node)
	arrival := s.current + travel
	idealArrival := s.current + ideal

	ctx := explain.Context{
		ArrivalTime:    formatHHMM(arrival),
		DayEnd:         formatHHMM(s.dayEnd),
		HardNodeCount:  s.hardCount,
		BufferFactor:   s.req.Transport.BufferFactor,
		FixedBufferMin: s.req.Transport.FixedBufferMin,
	}

	if !c.hasWin {
		return planner.ReasonClosedDay, ctx
	}
	ctx.WindowClose = formatHHMM(c.win.close)

	if arrival > c.win.close || arrival > s.dayEnd {
		return planner.ReasonTimeWindowConflict, ctx
	}

	idealStart := idealArrival
	if c.win.open > idealStart {
		idealStart = c.win.open
	}
	idealFeasible := idealArrival <= c.win.close && idealStart+c.node.ServiceDurationMin <= s.dayEnd
	if idealFeasible && !s.isVisitable(c) {
		return planner.ReasonRobustTimeInfeasible, ctx
	}

	if s.hardCount > 0 && !c.node.Constraints.IsHardNode {
		return planner.ReasonHardNodeProtection, ctx
	}

	start := arrival
	if c.win.open > start {
		start = c.win.open
	}
	wait := start - arrival
	if wait < 0 {
		wait = 0
	}
	ctx.WaitMinutes = wait
	if wait > 15 {
		return planner.ReasonHighWaitTime, ctx
	}

	priority := c.node.Constraints.PriorityLevel
	if priority == 0 {
		priority = 5
	}
	if priority >= 4 {
		return planner.ReasonLowPriorityNotWorth, ctx
	}

	return planner.ReasonInsufficientTotalTime, ctx
}

func dropPenalty(n planner.PlanNode) float64 {
	if n.Constraints.DropPenalty != nil {
		return *n.Constraints.DropPenalty
	}
	priority := n.Constraints.PriorityLevel
	if priority == 0 {
		priority = 5
	}
	return 1000 * float64(6-priority)
}

func (s *session) drop(n planner.PlanNode, code planner.DropReasonCode, ctx explain.Context) {
	oid := n.OriginOrSelfID()
	if _, already := s.dropped[oid]; already {
		return
	}
	exp := explain.Explain(&n, code, ctx)
	s.dropped[oid] = planner.DroppedNode{
		NodeID:      oid,
		Name:        n.Name,
		ReasonCode:  code,
		Penalty:     dropPenalty(n),
		Explanation: exp,
	}
}

// finish runs the remaining post-processing steps and builds the result.
// When hardFailed is true, failHardGroup has already recorded the drop of
// the hard node that could not be visited; every other node that was
// neither visited nor already recorded is classified and dropped here, and
// the status is INFEASIBLE.
func (s *session) finish(hardFailed bool) *planner.OptimizationResult {
	if hardFailed {
		s.dropAllUnvisited()
		return s.buildResult(planner.StatusInfeasible)
	}
	s.dropAllUnvisited()
	status := planner.StatusFeasible
	if len(s.route) == 0 || s.anyHardNodeMissing() {
		status = planner.StatusInfeasible
	}
	return s.buildResult(status)
}

func (s *session) anyHardNodeMissing() bool {
	for _, n := range s.req.Nodes {
		if n.Constraints.IsHardNode && !s.visitedGroups[n.ID] {
			return true
		}
	}
	return false
}

func (s *session) dropAllUnvisited() {
	for _, n := range s.req.Nodes {
		if s.visitedGroups[n.ID] {
			continue
		}
		if _, already := s.dropped[n.ID]; already {
			continue
		}
		c := s.representativeCandidate(n)
		code, ctx := s.classify(c)
		s.drop(n, code, ctx)
	}
}

// representativeCandidate reconstructs a single-window candidate view of an
// original (possibly multi-window) node for classification purposes: the
// window that would give it the best chance (the one that closes latest).
func (s *session) representativeCandidate(n planner.PlanNode) candidate {
	if len(n.TimeWindows) == 0 {
		return candidate{node: n, hasWin: false}
	}
	best := candidate{node: n, hasWin: false}
	bestClose := -1.0
	for _, tw := range n.TimeWindows {
		w, err := toWindow(tw)
		if err != nil {
			continue
		}
		if w.close > bestClose {
			bestClose = w.close
			best = candidate{node: n, win: w, hasWin: true}
		}
	}
	return best
}

func (s *session) buildResult(status planner.OptimizationStatus) *planner.OptimizationResult {
	route := make([]planner.RouteNode, 0, len(s.route))
	var totalTravel, totalWait, totalService float64
	for i, v := range s.route {
		route = append(route, planner.RouteNode{
			Seq:               i + 1,
			NodeID:            v.node.ID,
			OriginID:          v.node.Meta.OriginID,
			Name:              v.node.Name,
			Arrival:           formatHHMM(v.arrival),
			StartService:      formatHHMM(v.startService),
			EndService:        formatHHMM(v.endService),
			WaitMin:           v.wait,
			TravelMinFromPrev: v.travel,
		})
		totalTravel += v.travel
		totalWait += v.wait
		totalService += v.node.ServiceDurationMin
	}

	timeline := s.buildTimeline()

	dropped := make([]planner.DroppedNode, 0, len(s.dropped))
	for _, d := range s.dropped {
		dropped = append(dropped, d)
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].NodeID < dropped[j].NodeID })

	robustness, riskLevel := s.computeRobustness(totalWait)
	robustnessScore := s.computeRobustnessScore()

	result := &planner.OptimizationResult{
		Status: status,
		Summary: planner.Summary{
			TotalTravelMin:  totalTravel,
			TotalWaitMin:    totalWait,
			TotalServiceMin: totalService,
			RobustnessScore: robustnessScore,
		},
		Route:    route,
		Timeline: timeline,
		Dropped:  dropped,
		Diagnostics: planner.Diagnostics{
			CriticalWindows: s.criticalWindowNames(),
		},
		Robustness: robustness,
	}
	result.Diagnostics.Assumptions.BufferFactor = s.req.Transport.BufferFactor
	result.Diagnostics.Assumptions.FixedBufferMin = s.req.Transport.FixedBufferMin
	result.Robustness.RiskLevel = riskLevel
	return result
}

func (s *session) buildTimeline() []planner.TimelineEvent {
	type evt struct {
		start float64
		e     planner.TimelineEvent
	}
	var events []evt
	prevEnd := -1.0
	for _, v := range s.route {
		if prevEnd >= 0 && v.travel > 0 {
			events = append(events, evt{start: prevEnd, e: planner.TimelineEvent{
				Type: planner.EventTravel, Start: formatHHMM(prevEnd), End: formatHHMM(v.arrival),
				DurationMin: v.travel, Description: "Travel to " + v.node.Name,
			}})
		}
		if v.wait > 15 {
			events = append(events, evt{start: v.arrival, e: planner.TimelineEvent{
				Type: planner.EventWait, Start: formatHHMM(v.arrival), End: formatHHMM(v.startService),
				DurationMin: v.wait, Description: "Wait for " + v.node.Name, NodeID: v.node.ID,
			}})
		}
		events = append(events, evt{start: v.startService, e: planner.TimelineEvent{
			Type: planner.EventNode, Start: formatHHMM(v.startService), End: formatHHMM(v.endService),
			DurationMin: v.endService - v.startService, Description: "Visit " + v.node.Name, NodeID: v.node.ID,
		}})
		prevEnd = v.endService
	}
	if s.lunch != nil {
		events = append(events, evt{start: s.lunch.start, e: planner.TimelineEvent{
			Type: planner.EventLunch, Start: formatHHMM(s.lunch.start), End: formatHHMM(s.lunch.end),
			DurationMin: s.lunch.end - s.lunch.start, Description: "Lunch break",
		}})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].start < events[j].start })
	out := make([]planner.TimelineEvent, len(events))
	for i, e := range events {
		out[i] = e.e
	}
	return out
}

func (s *session) computeRobustness(totalWait float64) (planner.Robustness, planner.RiskLevel) {
	type slackEntry struct {
		id    string
		slack float64
	}
	slacks := make([]slackEntry, 0, len(s.route))
	var totalBuffer float64
	for _, v := range s.route {
		slacks = append(slacks, slackEntry{id: v.node.ID, slack: s.dayEnd - v.endService})
	}
	// total buffer minutes = sum over consecutive legs of (robust - ideal)
	for i := 1; i < len(s.route); i++ {
		totalBuffer += s.route[i].travel - s.idealMinutes(s.route[i-1].node, s.route[i].node)
	}

	sort.Slice(slacks, func(i, j int) bool { return slacks[i].slack < slacks[j].slack })
	top := slacks
	if len(top) > 3 {
		top = top[:3]
	}
	ids := make([]string, len(top))
	slackValues := make([]float64, len(top))
	for i, e := range top {
		ids[i] = e.id
		slackValues[i] = e.slack
	}
	risk := planner.RiskLow
	if len(top) > 0 {
		mean := stat.Mean(slackValues, nil)
		switch {
		case mean < 30:
			risk = planner.RiskHigh
		case mean < 60:
			risk = planner.RiskMedium
		default:
			risk = planner.RiskLow
		}
	}
	return planner.Robustness{
		TotalBufferMinutes: totalBuffer,
		TotalWaitMinutes:   totalWait,
		Top3MinSlackNodes:  ids,
	}, risk
}

func (s *session) computeRobustnessScore() float64 {
	if len(s.route) == 0 {
		return 0
	}
	var criticalCount int
	var sumSlack float64
	for _, v := range s.route {
		slack := s.dayEnd - v.endService
		sumSlack += slack
		if slack < 30 {
			criticalCount++
		}
	}
	criticalRatio := float64(criticalCount) / float64(len(s.route))
	avgSlack := sumSlack / float64(len(s.route))
	capped := avgSlack / 60
	if capped > 1 {
		capped = 1
	}
	score := 1 - 0.5*criticalRatio - 0.3*(1-capped)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func (s *session) criticalWindowNames() []string {
	var names []string
	for _, v := range s.route {
		if s.dayEnd-v.endService < 30 {
			names = append(names, v.node.Name)
		}
	}
	return names
}
