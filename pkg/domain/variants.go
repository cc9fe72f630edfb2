package domain

import "fmt"

// Trigger starts a branch when a named game event fires.
type Trigger struct {
	Base  `mapstructure:",squash"`
	Event string `mapstructure:"event"`
}

func NewTrigger(id, event string) *Trigger {
	return &Trigger{Base: Base{NodeID: id, Ports: singlePort("next")}, Event: event}
}

func (n *Trigger) Kind() Kind           { return KindTrigger }
func (n *Trigger) IsDataComplete() bool { return n.Event != "" }
func (n *Trigger) Color() string        { return "amber" }

func (n *Trigger) Title() string {
	if n.Event == "" {
		return "Trigger"
	}
	return "On " + n.Event
}

func (n *Trigger) Description() string {
	return fmt.Sprintf("Fires when event %q is raised.", n.Event)
}

func (n *Trigger) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

// Mutation changes a story variable.
type Mutation struct {
	Base     `mapstructure:",squash"`
	Variable string `mapstructure:"variable"`
	Operator string `mapstructure:"operator"` // set, add, sub, toggle
	Value    any    `mapstructure:"value"`
}

func NewMutation(id, variable, operator string, value any) *Mutation {
	return &Mutation{
		Base:     Base{NodeID: id, Ports: singlePort("next")},
		Variable: variable,
		Operator: operator,
		Value:    value,
	}
}

func (n *Mutation) Kind() Kind    { return KindMutation }
func (n *Mutation) Color() string { return "violet" }

func (n *Mutation) IsDataComplete() bool {
	if n.Variable == "" {
		return false
	}
	switch n.Operator {
	case "toggle":
		return true
	case "set", "add", "sub":
		return n.Value != nil
	default:
		return false
	}
}

func (n *Mutation) Title() string {
	if n.Variable == "" {
		return "Mutation"
	}
	return fmt.Sprintf("%s %s", n.Operator, n.Variable)
}

func (n *Mutation) Description() string {
	return fmt.Sprintf("Applies %s %v to variable %q.", n.Operator, n.Value, n.Variable)
}

func (n *Mutation) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

// Dialogue shows a line of text. Each port is a player choice named by its label.
type Dialogue struct {
	Base    `mapstructure:",squash"`
	Speaker string `mapstructure:"speaker"`
	Text    string `mapstructure:"text"`
}

func NewDialogue(id, speaker, text string, choices ...string) *Dialogue {
	ports := make([]Port, 0, len(choices))
	for _, c := range choices {
		ports = append(ports, Port{Name: c})
	}
	if len(ports) == 0 {
		ports = singlePort("continue")
	}
	return &Dialogue{Base: Base{NodeID: id, Ports: ports}, Speaker: speaker, Text: text}
}

func (n *Dialogue) Kind() Kind    { return KindDialogue }
func (n *Dialogue) Color() string { return "sky" }

func (n *Dialogue) IsDataComplete() bool {
	return n.Speaker != "" && n.Text != "" && len(n.Ports) > 0
}

func (n *Dialogue) Title() string {
	if n.Speaker == "" {
		return "Dialogue"
	}
	return n.Speaker
}

func (n *Dialogue) Description() string {
	return fmt.Sprintf("%s says %q (%d choices).", n.Speaker, n.Text, len(n.Ports))
}

func (n *Dialogue) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

// Combat starts an encounter and branches on its outcome.
type Combat struct {
	Base  `mapstructure:",squash"`
	Enemy string `mapstructure:"enemy"`
}

func NewCombat(id, enemy string) *Combat {
	return &Combat{
		Base:  Base{NodeID: id, Ports: []Port{{Name: "victory"}, {Name: "defeat"}}},
		Enemy: enemy,
	}
}

func (n *Combat) Kind() Kind           { return KindCombat }
func (n *Combat) IsDataComplete() bool { return n.Enemy != "" }
func (n *Combat) Color() string        { return "red" }

func (n *Combat) Title() string {
	if n.Enemy == "" {
		return "Combat"
	}
	return "Fight " + n.Enemy
}

func (n *Combat) Description() string {
	return fmt.Sprintf("Combat encounter against %q.", n.Enemy)
}

func (n *Combat) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

// Quest declares a quest. Task and Progress nodes point at it by identifier.
type Quest struct {
	Base `mapstructure:",squash"`
	Name string `mapstructure:"name"`
}

func NewQuest(id, name string) *Quest {
	return &Quest{Base: Base{NodeID: id, Ports: singlePort("next")}, Name: name}
}

func (n *Quest) Kind() Kind           { return KindQuest }
func (n *Quest) IsDataComplete() bool { return n.Name != "" }
func (n *Quest) Color() string        { return "gold" }

func (n *Quest) Title() string {
	if n.Name == "" {
		return "Quest"
	}
	return n.Name
}

func (n *Quest) Description() string {
	return fmt.Sprintf("Starts quest %q.", n.Name)
}

func (n *Quest) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

// Task declares a task belonging to a quest.
type Task struct {
	Base    `mapstructure:",squash"`
	QuestID string `mapstructure:"quest_id"`
	Name    string `mapstructure:"name"`
}

func NewTask(id, questID, name string) *Task {
	return &Task{Base: Base{NodeID: id, Ports: singlePort("next")}, QuestID: questID, Name: name}
}

func (n *Task) Kind() Kind           { return KindTask }
func (n *Task) IsDataComplete() bool { return n.QuestID != "" && n.Name != "" }
func (n *Task) Color() string        { return "gold" }

func (n *Task) Title() string {
	if n.Name == "" {
		return "Task"
	}
	return n.Name
}

func (n *Task) Description() string {
	return fmt.Sprintf("Adds task %q to quest %s.", n.Name, n.QuestID)
}

func (n *Task) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

func (n *Task) References() map[string]string {
	return nonEmpty(map[string]string{"quest_id": n.QuestID})
}

func (n *Task) RemapReferences(table map[string]string) {
	n.QuestID = remap(table, n.QuestID)
}

// Progress marks a task of a quest as completed or failed.
type Progress struct {
	Base    `mapstructure:",squash"`
	QuestID string `mapstructure:"quest_id"`
	TaskID  string `mapstructure:"task_id"`
	State   string `mapstructure:"state"` // completed, failed
}

func NewProgress(id, questID, taskID, state string) *Progress {
	return &Progress{
		Base:    Base{NodeID: id, Ports: singlePort("next")},
		QuestID: questID,
		TaskID:  taskID,
		State:   state,
	}
}

func (n *Progress) Kind() Kind    { return KindProgress }
func (n *Progress) Color() string { return "gold" }

func (n *Progress) IsDataComplete() bool {
	return n.QuestID != "" && n.TaskID != "" && (n.State == "completed" || n.State == "failed")
}

func (n *Progress) Title() string { return "Task " + n.State }

func (n *Progress) Description() string {
	return fmt.Sprintf("Marks task %s of quest %s as %s.", n.TaskID, n.QuestID, n.State)
}

func (n *Progress) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

func (n *Progress) References() map[string]string {
	return nonEmpty(map[string]string{"quest_id": n.QuestID, "task_id": n.TaskID})
}

func (n *Progress) RemapReferences(table map[string]string) {
	n.QuestID = remap(table, n.QuestID)
	n.TaskID = remap(table, n.TaskID)
}

// TreeEntry is an entry socket of the tree containing it.
type TreeEntry struct {
	Base `mapstructure:",squash"`
}

func NewTreeEntry(id string) *TreeEntry {
	return &TreeEntry{Base: Base{NodeID: id, Ports: singlePort("next")}}
}

func (n *TreeEntry) Kind() Kind           { return KindTreeEntry }
func (n *TreeEntry) IsDataComplete() bool { return true }
func (n *TreeEntry) Title() string        { return "Entry" }
func (n *TreeEntry) Color() string        { return "green" }
func (n *TreeEntry) Description() string  { return "Entry point of the enclosing tree." }

func (n *TreeEntry) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

// TreeExit is an exit socket. Its single port targets nodes of the parent tree.
type TreeExit struct {
	Base  `mapstructure:",squash"`
	Label string `mapstructure:"label"`
}

func NewTreeExit(id, label string) *TreeExit {
	return &TreeExit{Base: Base{NodeID: id, Ports: singlePort(label)}, Label: label}
}

func (n *TreeExit) Kind() Kind           { return KindTreeExit }
func (n *TreeExit) IsDataComplete() bool { return true }
func (n *TreeExit) Color() string        { return "green" }

func (n *TreeExit) Title() string {
	if n.Label == "" {
		return "Exit"
	}
	return "Exit " + n.Label
}

func (n *TreeExit) Description() string { return "Exit point of the enclosing tree." }

func (n *TreeExit) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

// Parameter types understood by TemplateParameter.
const (
	ParamString = "string"
	ParamNumber = "number"
	ParamBool   = "bool"
	ParamQuest  = "quest"
)

// TemplateParameter is a value a template instance must provide.
// When ParamType is "quest", Value holds the identifier of a quest node.
type TemplateParameter struct {
	Base       `mapstructure:",squash"`
	Name       string `mapstructure:"name"`
	ParamType  string `mapstructure:"param_type"`
	Value      any    `mapstructure:"value"`
	AllowBlank bool   `mapstructure:"allow_blank"`
}

func NewTemplateParameter(id, name, paramType string, value any) *TemplateParameter {
	return &TemplateParameter{
		Base:      Base{NodeID: id},
		Name:      name,
		ParamType: paramType,
		Value:     value,
	}
}

func (n *TemplateParameter) Kind() Kind    { return KindTemplateParameter }
func (n *TemplateParameter) Color() string { return "slate" }

func (n *TemplateParameter) IsDataComplete() bool {
	if n.AllowBlank {
		return true
	}
	if n.Value == nil {
		return false
	}
	if s, ok := n.Value.(string); ok {
		return s != ""
	}
	return true
}

func (n *TemplateParameter) Title() string {
	if n.Name == "" {
		return "Parameter"
	}
	return n.Name
}

func (n *TemplateParameter) Description() string {
	return fmt.Sprintf("Template parameter %q (%s) = %v.", n.Name, n.ParamType, n.Value)
}

func (n *TemplateParameter) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

func (n *TemplateParameter) References() map[string]string {
	if n.ParamType != ParamQuest {
		return nil
	}
	s, _ := n.Value.(string)
	return nonEmpty(map[string]string{"value": s})
}

func (n *TemplateParameter) RemapReferences(table map[string]string) {
	if n.ParamType != ParamQuest {
		return
	}
	if s, ok := n.Value.(string); ok {
		n.Value = remap(table, s)
	}
}

// TreeProperties carries tree level metadata. Every tree has exactly one.
type TreeProperties struct {
	Base  `mapstructure:",squash"`
	Notes string `mapstructure:"notes"`
}

func NewTreeProperties(id, notes string) *TreeProperties {
	return &TreeProperties{Base: Base{NodeID: id}, Notes: notes}
}

func (n *TreeProperties) Kind() Kind           { return KindTreeProperties }
func (n *TreeProperties) IsDataComplete() bool { return true }
func (n *TreeProperties) Title() string        { return "Properties" }
func (n *TreeProperties) Color() string        { return "slate" }
func (n *TreeProperties) Description() string  { return n.Notes }

func (n *TreeProperties) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

// Comment is an authoring note with no runtime behaviour.
type Comment struct {
	Base `mapstructure:",squash"`
	Text string `mapstructure:"text"`
}

func NewComment(id, text string) *Comment {
	return &Comment{Base: Base{NodeID: id}, Text: text}
}

func (n *Comment) Kind() Kind           { return KindComment }
func (n *Comment) IsDataComplete() bool { return true }
func (n *Comment) Title() string        { return "Comment" }
func (n *Comment) Color() string        { return "gray" }
func (n *Comment) Description() string  { return n.Text }

func (n *Comment) CloneAs(id string) ActionNode {
	c := *n
	c.Base = n.cloneBase(id)
	return &c
}

func remap(table map[string]string, id string) string {
	if nid, ok := table[id]; ok {
		return nid
	}
	return id
}

func nonEmpty(refs map[string]string) map[string]string {
	for k, v := range refs {
		if v == "" {
			delete(refs, k)
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

var (
	_ Referrer = (*Task)(nil)
	_ Referrer = (*Progress)(nil)
	_ Referrer = (*TemplateParameter)(nil)
)
