package trace

// Entity and operation markers of the built-in actor runtime description.
const (
	ActivityActor  ActivityType = 1
	ActivityThread ActivityType = 2

	PassivePromise PassiveEntityType = 10
	PassiveLock    PassiveEntityType = 11

	ScopeTurn DynamicScopeType = 20

	SendActorMessage   SendOpType = 1
	SendPromiseResolve SendOpType = 2
	SendLockAcquire    SendOpType = 3
	SendEnterTurn      SendOpType = 4

	ReceiveActorMessage ReceiveOpType = 1
	ReceivePromiseValue ReceiveOpType = 2
	ReceiveLockRelease  ReceiveOpType = 3
	ReceiveTurnResult   ReceiveOpType = 4
)

// ActorRuntimeCapabilities describes an actor runtime with promises and locks.
// It is used when no meta-model file is configured.
func ActorRuntimeCapabilities() Capabilities {
	return Capabilities{
		Activities: []EntityDef{
			{ID: int(ActivityActor), Label: "Actor", Marker: "actor"},
			{ID: int(ActivityThread), Label: "Thread", Marker: "thread"},
		},
		PassiveEntities: []EntityDef{
			{ID: int(PassivePromise), Label: "Promise", Marker: "promise"},
			{ID: int(PassiveLock), Label: "Lock", Marker: "lock"},
		},
		DynamicScopes: []EntityDef{
			{ID: int(ScopeTurn), Label: "Turn"},
		},
		SendOps: []SendDef{
			{Marker: SendActorMessage, Entity: int(ActivityActor), Target: int(ActivityActor), Label: "message"},
			{Marker: SendPromiseResolve, Entity: int(ActivityActor), Target: int(PassivePromise), Label: "promise resolution"},
			{Marker: SendLockAcquire, Entity: int(ActivityThread), Target: int(PassiveLock), Label: "lock acquire"},
			{Marker: SendEnterTurn, Entity: int(ActivityActor), Target: int(ScopeTurn), Label: "enter turn"},
		},
		ReceiveOps: []ReceiveDef{
			{Marker: ReceiveActorMessage, Source: int(ActivityActor)},
			{Marker: ReceivePromiseValue, Source: int(PassivePromise)},
			{Marker: ReceiveLockRelease, Source: int(PassiveLock)},
			{Marker: ReceiveTurnResult, Source: int(ScopeTurn)},
		},
	}
}

// ActorRuntimeMetaModel returns the meta-model of ActorRuntimeCapabilities.
func ActorRuntimeMetaModel() *MetaModel {
	m, err := NewMetaModel(ActorRuntimeCapabilities())
	if err != nil {
		panic(err) // static table
	}
	return m
}
