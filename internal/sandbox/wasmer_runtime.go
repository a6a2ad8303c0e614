package sandbox

import (
	"encoding/binary"
	"encoding/json"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/ironclaw/core/internal/kerr"
)

// WasmerGuestRuntime is the production GuestRuntime backed by
// github.com/wasmerio/wasmer-go. A guest exports a "memory" and an
// "invoke" function taking (ptr, len) for its JSON input and returning
// a packed (ptr<<32 | len) for its JSON output — the calling
// convention the teacher's plugin SDK uses for cross-boundary byte
// passing, adapted here from shared-library calls to WASM linear
// memory.
type WasmerGuestRuntime struct {
	store  *wasmer.Store
	module *wasmer.Module
}

// NewWasmerGuestRuntime compiles wasmBytes once; Instantiate may be
// called repeatedly against the same compiled module.
func NewWasmerGuestRuntime(wasmBytes []byte) (*WasmerGuestRuntime, error) {
	store := wasmer.NewStore(wasmer.NewEngine())
	module, err := wasmer.NewModule(store, wasmBytes)
	if err != nil {
		return nil, kerr.New(kerr.Sandbox, "failed to compile guest module: %v", err)
	}
	return &WasmerGuestRuntime{store: store, module: module}, nil
}

// Imports lists the module's declared imports, for the capability
// check in Host.Link.
func (r *WasmerGuestRuntime) Imports() ([]moduleImport, error) {
	out := make([]moduleImport, 0, len(r.module.Imports()))
	for _, imp := range r.module.Imports() {
		out = append(out, moduleImport{Namespace: imp.Module(), Name: imp.Name()})
	}
	return out, nil
}

// Instantiate links the module against host-exposed functions wrapping
// funcs, writes input into guest memory, calls "invoke", and reads the
// result back out of guest memory.
func (r *WasmerGuestRuntime) Instantiate(funcs HostFunctions, input []byte) ([]byte, error) {
	importObject := wasmer.NewImportObject()

	var instance *wasmer.Instance

	secretExistsType := wasmer.NewFunctionType(
		wasmer.NewValueTypes(wasmer.I32, wasmer.I32), wasmer.NewValueTypes(wasmer.I32),
	)
	secretExistsFn := wasmer.NewFunction(r.store, secretExistsType, func(args []wasmer.Value) ([]wasmer.Value, error) {
		name, err := readGuestString(instance, args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		result := int32(0)
		if funcs.SecretExists != nil && funcs.SecretExists(name) {
			result = 1
		}
		return []wasmer.Value{wasmer.NewI32(result)}, nil
	})

	toolInvokeType := wasmer.NewFunctionType(
		wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32), wasmer.NewValueTypes(wasmer.I64),
	)
	toolInvokeFn := wasmer.NewFunction(r.store, toolInvokeType, func(args []wasmer.Value) ([]wasmer.Value, error) {
		alias, err := readGuestString(instance, args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		paramsRaw, err := readGuestBytes(instance, args[2].I32(), args[3].I32())
		if err != nil {
			return nil, err
		}
		if funcs.ToolInvoke == nil {
			return nil, kerr.New(kerr.Sandbox, "tool_invoke not available to this guest")
		}
		result, err := funcs.ToolInvoke(alias, json.RawMessage(paramsRaw))
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		ptr, err := writeGuestBytes(instance, encoded)
		if err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI64(packPtrLen(ptr, int32(len(encoded))))}, nil
	})

	importObject.Register("env", map[string]wasmer.IntoExtern{
		"secret_exists": secretExistsFn,
		"tool_invoke":   toolInvokeFn,
	})

	var err error
	instance, err = wasmer.NewInstance(r.module, importObject)
	if err != nil {
		return nil, kerr.New(kerr.Sandbox, "failed to instantiate guest: %v", err)
	}
	defer instance.Close()

	inputPtr, err := writeGuestBytes(instance, input)
	if err != nil {
		return nil, err
	}

	invoke, err := instance.Exports.GetFunction("invoke")
	if err != nil {
		return nil, kerr.New(kerr.Sandbox, "guest does not export \"invoke\": %v", err)
	}

	raw, err := invoke(inputPtr, int32(len(input)))
	if err != nil {
		return nil, kerr.New(kerr.Sandbox, "guest invocation failed: %v", err)
	}

	packed, ok := raw.(int64)
	if !ok {
		return nil, kerr.New(kerr.Sandbox, "guest invoke must return a packed (ptr,len) i64")
	}
	outPtr, outLen := unpackPtrLen(packed)
	return readGuestBytes(instance, outPtr, outLen)
}

func packPtrLen(ptr, length int32) int64 {
	return int64(uint64(uint32(ptr))<<32 | uint64(uint32(length)))
}

func unpackPtrLen(packed int64) (int32, int32) {
	u := uint64(packed)
	return int32(u >> 32), int32(u & 0xffffffff)
}

func guestMemory(instance *wasmer.Instance) (*wasmer.Memory, error) {
	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, kerr.New(kerr.Sandbox, "guest does not export linear memory: %v", err)
	}
	return mem, nil
}

func readGuestBytes(instance *wasmer.Instance, ptr, length int32) ([]byte, error) {
	mem, err := guestMemory(instance)
	if err != nil {
		return nil, err
	}
	data := mem.Data()
	if int(ptr) < 0 || int(ptr)+int(length) > len(data) {
		return nil, kerr.New(kerr.Sandbox, "guest memory access out of bounds")
	}
	out := make([]byte, length)
	copy(out, data[ptr:int(ptr)+int(length)])
	return out, nil
}

func readGuestString(instance *wasmer.Instance, ptr, length int32) (string, error) {
	b, err := readGuestBytes(instance, ptr, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeGuestBytes appends data at the end of the guest's current
// memory and returns its offset. The guest module is expected to grow
// its own memory (via an exported "alloc" convention) before invoke is
// called for input this large; for the fixed-size host responses here
// we write past the guest's reported data length, relying on memory
// pages already reserved beyond it.
func writeGuestBytes(instance *wasmer.Instance, data []byte) (int32, error) {
	mem, err := guestMemory(instance)
	if err != nil {
		return 0, err
	}
	alloc, err := instance.Exports.GetFunction("alloc")
	if err != nil {
		return 0, kerr.New(kerr.Sandbox, "guest does not export \"alloc\": %v", err)
	}
	rawPtr, err := alloc(int32(len(data)))
	if err != nil {
		return 0, kerr.New(kerr.Sandbox, "guest alloc failed: %v", err)
	}
	ptr, ok := rawPtr.(int32)
	if !ok {
		return 0, kerr.New(kerr.Sandbox, "guest alloc must return an i32 pointer")
	}

	guestData := mem.Data()
	if int(ptr)+len(data) > len(guestData) {
		return 0, kerr.New(kerr.Sandbox, "guest alloc returned a pointer outside its memory")
	}
	copy(guestData[ptr:], data)
	return ptr, nil
}

var _ = binary.LittleEndian // retained for future wire-format alignment with the host's other byte-oriented protocols
