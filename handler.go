package reactor

// Handler receives readiness notifications for one handle.
//
// Methods are invoked on the reactor goroutine and must not block. Embed
// [UnimplementedHandler] to implement only the methods of interest, or use
// [HandlerFuncs].
type Handler interface {
	OnAcceptable()
	OnConnectable()
	OnWritable()
	OnReadable()
}

// UnimplementedHandler implements every [Handler] method as a no-op.
type UnimplementedHandler struct{}

func (UnimplementedHandler) OnAcceptable()  {}
func (UnimplementedHandler) OnConnectable() {}
func (UnimplementedHandler) OnWritable()    {}
func (UnimplementedHandler) OnReadable()    {}

// HandlerFuncs adapts plain functions to [Handler]. Nil fields are ignored.
type HandlerFuncs struct {
	Acceptable  func()
	Connectable func()
	Writable    func()
	Readable    func()
}

var _ Handler = HandlerFuncs{}

func (x HandlerFuncs) OnAcceptable() {
	if x.Acceptable != nil {
		x.Acceptable()
	}
}

func (x HandlerFuncs) OnConnectable() {
	if x.Connectable != nil {
		x.Connectable()
	}
}

func (x HandlerFuncs) OnWritable() {
	if x.Writable != nil {
		x.Writable()
	}
}

func (x HandlerFuncs) OnReadable() {
	if x.Readable != nil {
		x.Readable()
	}
}

// invoke calls the method of h matching the single readiness kind.
func invoke(h Handler, kind Interest) {
	switch kind {
	case InterestAccept:
		h.OnAcceptable()
	case InterestConnect:
		h.OnConnectable()
	case InterestWrite:
		h.OnWritable()
	case InterestRead:
		h.OnReadable()
	}
}
