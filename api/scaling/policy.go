package scaling

import (
	"math"
	"time"

	"github.com/equinor/radix-release-api/internal/config"
)

// Direction of a replica change
type Direction string

const (
	ScaleOut Direction = "out"
	ScaleIn  Direction = "in"
	NoChange Direction = "none"
)

// Policy Scaling bounds and damping for one service
// swagger:model ScalingPolicy
type Policy struct {
	// ServiceName the policy applies to
	//
	// example: streamlit-app
	ServiceName string `json:"serviceName"`
	// Metric cpu or memory
	//
	// example: cpu
	Metric string `json:"metric"`
	// TargetValue utilization in percent of requests
	//
	// example: 70
	TargetValue float64 `json:"targetValue"`
	MinReplicas int32   `json:"minReplicas"`
	MaxReplicas int32   `json:"maxReplicas"`
	// ScaleInCooldown minimum time between two scale-in actions
	ScaleInCooldown time.Duration `json:"scaleInCooldown"`
	// ScaleOutCooldown minimum time between two scale-out actions
	ScaleOutCooldown time.Duration `json:"scaleOutCooldown"`
	Interval         time.Duration `json:"interval"`
	// Tolerance fraction of the target inside which no action is taken
	Tolerance float64 `json:"tolerance"`
}

func PolicyFromDefinition(def config.ServiceDefinition) Policy {
	return Policy{
		ServiceName:      def.Name,
		Metric:           def.Scaling.Metric,
		TargetValue:      def.Scaling.TargetValue,
		MinReplicas:      def.Scaling.MinReplicas,
		MaxReplicas:      def.Scaling.MaxReplicas,
		ScaleInCooldown:  def.Scaling.ScaleInCooldown,
		ScaleOutCooldown: def.Scaling.ScaleOutCooldown,
		Interval:         def.Scaling.Interval,
		Tolerance:        def.Scaling.Tolerance,
	}
}

// Decision Outcome of comparing one observation to a policy
type Decision struct {
	Direction   Direction `json:"direction"`
	Current     int32     `json:"current"`
	Desired     int32     `json:"desired"`
	Utilization float64   `json:"utilization"`
	Reason      string    `json:"reason"`
	// Clamped the replica count was outside [min,max]; such corrections do not start a cooldown
	Clamped bool `json:"clamped,omitempty"`
}

// cooldowns Time of the last action in each direction, zero when none
type cooldowns struct {
	lastScaleOut time.Time
	lastScaleIn  time.Time
}

func (c cooldowns) active(d time.Duration, last time.Time, now time.Time) bool {
	return !last.IsZero() && now.Sub(last) < d
}

// Decide Applies the policy to the current replica count and utilization.
// Out of bounds replica counts are clamped regardless of cooldown. Otherwise a scale-out proposes
// ceil(current*utilization/target), at least one more replica, and is suppressed inside the scale-out
// cooldown; scale-in mirrors it with the scale-in cooldown.
func Decide(policy Policy, current int32, utilization float64, now time.Time, state cooldowns) Decision {
	decision := Decision{Direction: NoChange, Current: current, Desired: current, Utilization: utilization}

	switch {
	case current < policy.MinReplicas:
		decision.Direction, decision.Desired, decision.Reason = ScaleOut, policy.MinReplicas, "below minimum replicas"
		decision.Clamped = true
		return decision
	case current > policy.MaxReplicas:
		decision.Direction, decision.Desired, decision.Reason = ScaleIn, policy.MaxReplicas, "above maximum replicas"
		decision.Clamped = true
		return decision
	}

	proportional := int32(math.Ceil(float64(current) * utilization / policy.TargetValue))
	switch {
	case utilization > policy.TargetValue*(1+policy.Tolerance):
		if current >= policy.MaxReplicas {
			decision.Reason = "at maximum replicas"
			return decision
		}
		if state.active(policy.ScaleOutCooldown, state.lastScaleOut, now) {
			decision.Reason = "scale-out cooldown"
			return decision
		}
		decision.Direction, decision.Reason = ScaleOut, "utilization above target"
		decision.Desired = min(max(proportional, current+1), policy.MaxReplicas)
	case utilization < policy.TargetValue*(1-policy.Tolerance):
		if current <= policy.MinReplicas {
			decision.Reason = "at minimum replicas"
			return decision
		}
		if state.active(policy.ScaleInCooldown, state.lastScaleIn, now) {
			decision.Reason = "scale-in cooldown"
			return decision
		}
		decision.Direction, decision.Reason = ScaleIn, "utilization below target"
		decision.Desired = max(min(proportional, current-1), policy.MinReplicas)
	default:
		decision.Reason = "within target"
	}
	return decision
}
