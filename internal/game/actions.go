package game

// ActionName identifies one NPC behavior.
type ActionName string

// All actions NPCs can take, grouped by category. Declaration order is the
// stable action-space ordering; appending is safe, reordering is a breaking
// change for every published model.
const (
	// Resource actions
	ActionGatherFood      ActionName = "gather_food"
	ActionGatherMaterials ActionName = "gather_materials"
	ActionCraftTools      ActionName = "craft_tools"
	ActionBuildShelter    ActionName = "build_shelter"

	// Social actions
	ActionHelpRandomNPC     ActionName = "help_random_npc"
	ActionShareResources    ActionName = "share_resources"
	ActionStartConversation ActionName = "start_conversation"
	ActionFormAlliance      ActionName = "form_alliance"

	// Governance actions
	ActionVoteOnProposal      ActionName = "vote_on_proposal"
	ActionProposeNewRule      ActionName = "propose_new_rule"
	ActionChallengeLeadership ActionName = "challenge_leadership"
	ActionSupportLeader       ActionName = "support_leader"

	// Personal actions
	ActionRest           ActionName = "rest"
	ActionPracticeSkills ActionName = "practice_skills"
	ActionObserveOthers  ActionName = "observe_others"
	ActionDoNothing      ActionName = "do_nothing"
)

// Category groups actions for legality rules and reward shaping.
type Category string

const (
	CategoryResource   Category = "resource"
	CategorySocial     Category = "social"
	CategoryGovernance Category = "governance"
	CategoryPersonal   Category = "personal"
)

// Metadata captures the game mechanics attached to an action. A negative
// energy cost restores energy.
type Metadata struct {
	EnergyCost      float64
	BaseSuccessRate float64
	Category        Category
}

// actionOrder is the canonical ordering backing the action space.
var actionOrder = []ActionName{
	ActionGatherFood,
	ActionGatherMaterials,
	ActionCraftTools,
	ActionBuildShelter,
	ActionHelpRandomNPC,
	ActionShareResources,
	ActionStartConversation,
	ActionFormAlliance,
	ActionVoteOnProposal,
	ActionProposeNewRule,
	ActionChallengeLeadership,
	ActionSupportLeader,
	ActionRest,
	ActionPracticeSkills,
	ActionObserveOthers,
	ActionDoNothing,
}

var actionMetadata = map[ActionName]Metadata{
	ActionGatherFood:          {EnergyCost: 0.3, BaseSuccessRate: 0.7, Category: CategoryResource},
	ActionGatherMaterials:     {EnergyCost: 0.4, BaseSuccessRate: 0.8, Category: CategoryResource},
	ActionCraftTools:          {EnergyCost: 0.2, BaseSuccessRate: 0.6, Category: CategoryResource},
	ActionBuildShelter:        {EnergyCost: 0.5, BaseSuccessRate: 0.5, Category: CategoryResource},
	ActionHelpRandomNPC:       {EnergyCost: 0.2, BaseSuccessRate: 0.8, Category: CategorySocial},
	ActionShareResources:      {EnergyCost: 0.1, BaseSuccessRate: 0.9, Category: CategorySocial},
	ActionStartConversation:   {EnergyCost: 0.1, BaseSuccessRate: 0.7, Category: CategorySocial},
	ActionFormAlliance:        {EnergyCost: 0.1, BaseSuccessRate: 0.4, Category: CategorySocial},
	ActionVoteOnProposal:      {EnergyCost: 0.05, BaseSuccessRate: 0.9, Category: CategoryGovernance},
	ActionProposeNewRule:      {EnergyCost: 0.15, BaseSuccessRate: 0.3, Category: CategoryGovernance},
	ActionChallengeLeadership: {EnergyCost: 0.3, BaseSuccessRate: 0.2, Category: CategoryGovernance},
	ActionSupportLeader:       {EnergyCost: 0.1, BaseSuccessRate: 0.8, Category: CategoryGovernance},
	ActionRest:                {EnergyCost: -0.4, BaseSuccessRate: 0.95, Category: CategoryPersonal},
	ActionPracticeSkills:      {EnergyCost: 0.2, BaseSuccessRate: 0.9, Category: CategoryPersonal},
	ActionObserveOthers:       {EnergyCost: 0.05, BaseSuccessRate: 0.8, Category: CategoryPersonal},
	ActionDoNothing:           {EnergyCost: 0.0, BaseSuccessRate: 1.0, Category: CategoryPersonal},
}

// Actions returns the canonical action ordering.
func Actions() []ActionName {
	out := make([]ActionName, len(actionOrder))
	copy(out, actionOrder)
	return out
}

// MetadataFor returns the game metadata for an action. Unknown actions get a
// conservative default.
func MetadataFor(name ActionName) Metadata {
	if meta, ok := actionMetadata[name]; ok {
		return meta
	}
	return Metadata{EnergyCost: 0.1, BaseSuccessRate: 0.5, Category: CategoryPersonal}
}

// ActionsByCategory returns all actions in a category, in canonical order.
func ActionsByCategory(category Category) []ActionName {
	var out []ActionName
	for _, name := range actionOrder {
		if actionMetadata[name].Category == category {
			out = append(out, name)
		}
	}
	return out
}
