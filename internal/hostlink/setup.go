package hostlink

import (
	"fmt"

	"github.com/saviobatista/worldflightpedia/internal/types"
)

// GroupPriorityHighest is the host's highest notification group priority
const GroupPriorityHighest uint32 = 1

// Setup opens the host session and registers the events, key mappings and
// data definitions the module reacts to. Only a failed open is fatal; every
// other step is logged and skipped on failure.
func Setup(c *Client, clientName string) error {
	if err := c.Open(clientName); err != nil {
		return fmt.Errorf("failed to open host session as %q: %w", clientName, err)
	}
	c.log.Info("host session opened", "client", clientName)

	step := func(desc string, err error, attrs ...any) {
		attrs = append(attrs, "step", desc)
		if err != nil {
			c.log.Warn("host setup step failed", append(attrs, "err", err)...)
			return
		}
		c.log.Info("host setup step ok", attrs...)
	}

	systemEvents := []struct {
		id   types.EventID
		name string
	}{
		{types.EventFlightLoaded, "FlightLoaded"},
		{types.EventSimStart, "SimStart"},
		{types.EventFlightPlanLoaded, "FlightPlanLoaded"},
	}
	for _, e := range systemEvents {
		step("subscribe system event", c.SubscribeSystemEvent(e.id, e.name), "event", e.name, "event_id", e.id)
	}

	keys := []struct {
		id   types.EventID
		key  string
		name string
	}{
		{types.EventTriggerM, "M", "Flightpedia.M"},
		{types.EventTriggerN, "N", "Flightpedia.N"},
	}
	for _, k := range keys {
		step("map client event", c.MapClientEvent(k.id, k.name), "event", k.name)
		step("map input event", c.MapInputEvent(types.InputGroup, k.key, k.id), "key", k.key)
	}
	for _, k := range keys {
		step("add client event to group", c.AddClientEventToGroup(types.GroupInput, k.id), "event", k.name)
	}
	step("set group priority", c.SetGroupPriority(types.GroupInput, GroupPriorityHighest))
	step("enable input group", c.SetInputGroupState(types.InputGroup, true))

	lvars := []struct {
		v     types.Variable
		def   types.DefinitionID
		req   types.RequestID
		flags types.DataRequestFlag
	}{
		{types.VarSpawnToggle, types.DefinitionLVarSpawn, types.RequestLVarSpawn, types.DataRequestDefault},
		{types.VarStartFlight, types.DefinitionLVarStartFlight, types.RequestLVarStartFlight, types.DataRequestDefault},
		{types.VarNextPoi, types.DefinitionLVarNextPoi, types.RequestLVarNextPoi, types.DataRequestDefault},
		{types.VarSpawnCube, types.DefinitionLVarSpawnCube, types.RequestLVarSpawnCube, types.DataRequestChanged},
	}
	for _, l := range lvars {
		name := l.v.String()
		step("add data definition", c.AddToDataDefinition(l.def, name, "Bool", types.DataTypeFloat64), "var", name)
		step("request data", c.RequestData(l.req, l.def, types.ObjectIDUser, types.PeriodSecond, l.flags), "var", name)
	}

	userPosition := []struct {
		name  string
		units string
	}{
		{"PLANE LATITUDE", "degrees"},
		{"PLANE LONGITUDE", "degrees"},
		{"PLANE ALTITUDE", "feet"},
		{"PLANE HEADING DEGREES TRUE", "degrees"},
	}
	for _, f := range userPosition {
		step("add data definition", c.AddToDataDefinition(types.DefinitionUserPosition, f.name, f.units, types.DataTypeFloat64), "var", f.name)
	}

	return nil
}

// Shutdown disables the input group and closes the host session
func Shutdown(c *Client) {
	if !c.Connected() {
		return
	}
	if err := c.SetInputGroupState(types.InputGroup, false); err != nil {
		c.log.Warn("failed to disable input group", "err", err)
	}
	if err := c.Close(); err != nil {
		c.log.Warn("failed to close host session", "err", err)
		return
	}
	c.log.Info("host session closed")
}
