//go:build gpu

package opencl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>
#include <stdlib.h>

static cl_context clsaxpy_create_context(cl_platform_id platform, cl_uint n, const cl_device_id *devices, cl_int *status) {
	const cl_context_properties props[] = {
		CL_CONTEXT_PLATFORM, (cl_context_properties)platform,
		0, 0
	};
	return clCreateContext(props, n, devices, NULL, NULL, status);
}

static cl_program clsaxpy_create_program(cl_context ctx, const char *source, size_t length, cl_int *status) {
	const char *sources[1] = { source };
	const size_t lengths[1] = { length };
	return clCreateProgramWithSource(ctx, 1, sources, lengths, status);
}

static cl_command_queue clsaxpy_create_queue(cl_context ctx, cl_device_id device, cl_int *status) {
#if CL_TARGET_OPENCL_VERSION >= 200
	const cl_queue_properties props[] = {0};
	return clCreateCommandQueueWithProperties(ctx, device, props, status);
#else
	return clCreateCommandQueue(ctx, device, 0, status);
#endif
}
*/
import "C"

import (
	"fmt"
	"log/slog"
	"strings"
	"unsafe"

	"github.com/cwbudde/clsaxpy/internal/compute"
)

func init() {
	compute.Register(compute.BackendOpenCL, func() (compute.Driver, error) {
		return New(), nil
	})
}

// Driver talks to the system OpenCL ICD loader.
type Driver struct{}

// New returns an OpenCL driver.
func New() *Driver {
	return &Driver{}
}

func (*Driver) Name() string { return string(compute.BackendOpenCL) }

type platform struct {
	id   C.cl_platform_id
	info compute.PlatformInfo
}

func (p *platform) Info() compute.PlatformInfo { return p.info }

type device struct {
	id   C.cl_device_id
	info compute.DeviceInfo
}

func (d *device) Info() compute.DeviceInfo { return d.info }

// Platforms enumerates every platform exposed by the ICD loader.
func (*Driver) Platforms() ([]compute.Platform, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	// Some loaders report CL_PLATFORM_NOT_FOUND_KHR (-1001) when no ICD is installed.
	if status == -1001 {
		return nil, nil
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(count)", status)
	}
	if count == 0 {
		return nil, nil
	}

	ids := make([]C.cl_platform_id, int(count))
	status = C.clGetPlatformIDs(count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(list)", status)
	}

	out := make([]compute.Platform, 0, len(ids))
	for _, pid := range ids {
		p := &platform{id: pid}
		for _, f := range []struct {
			dst   *string
			param C.cl_platform_info
		}{
			{&p.info.Name, C.CL_PLATFORM_NAME},
			{&p.info.Vendor, C.CL_PLATFORM_VENDOR},
			{&p.info.Version, C.CL_PLATFORM_VERSION},
		} {
			v, err := queryString("clGetPlatformInfo", platformQuery(pid, f.param))
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}
		out = append(out, p)
	}
	return out, nil
}

// Devices enumerates the devices of one class on p.
func (*Driver) Devices(p compute.Platform, typ compute.DeviceType) ([]compute.Device, error) {
	pl, ok := p.(*platform)
	if !ok {
		return nil, fmt.Errorf("opencl: foreign platform handle %T", p)
	}

	clType, err := toCLDeviceType(typ)
	if err != nil {
		return nil, err
	}

	var count C.cl_uint
	status := C.clGetDeviceIDs(pl.id, clType, 0, nil, &count)
	if status == C.CL_DEVICE_NOT_FOUND {
		return nil, nil
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(count)", status)
	}
	if count == 0 {
		return nil, nil
	}

	ids := make([]C.cl_device_id, int(count))
	status = C.clGetDeviceIDs(pl.id, clType, count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(list)", status)
	}

	out := make([]compute.Device, 0, len(ids))
	for _, id := range ids {
		info, err := describeDevice(id)
		if err != nil {
			return nil, err
		}
		out = append(out, &device{id: id, info: info})
	}
	return out, nil
}

// CreateContext creates a context on platform p holding devices.
func (*Driver) CreateContext(p compute.Platform, devices []compute.Device) (compute.Context, error) {
	pl, ok := p.(*platform)
	if !ok {
		return nil, fmt.Errorf("opencl: foreign platform handle %T", p)
	}
	if len(devices) == 0 {
		return nil, compute.NewStatusError("clCreateContext", compute.StatusInvalidValue)
	}

	ids, devs, err := deviceIDs(devices)
	if err != nil {
		return nil, err
	}

	var status C.cl_int
	ctx := C.clsaxpy_create_context(pl.id, C.cl_uint(len(ids)), &ids[0], &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateContext", status)
	}

	return &clContext{ctx: ctx, devices: devs}, nil
}

type clContext struct {
	ctx     C.cl_context
	devices []*device
}

func (c *clContext) CreateProgram(source string) (compute.Program, error) {
	if c.ctx == nil {
		return nil, compute.ErrReleased
	}

	src := C.CString(source)
	defer C.free(unsafe.Pointer(src))

	var status C.cl_int
	prog := C.clsaxpy_create_program(c.ctx, src, C.size_t(len(source)), &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateProgramWithSource", status)
	}
	return &program{prog: prog, ctx: c}, nil
}

func (c *clContext) CreateBuffer(flags compute.MemFlags, size int, host []float32) (compute.Buffer, error) {
	if c.ctx == nil {
		return nil, compute.ErrReleased
	}
	if size <= 0 {
		return nil, compute.NewStatusError("clCreateBuffer", compute.StatusInvalidBufferSize)
	}

	var hostPtr unsafe.Pointer
	switch {
	case flags&compute.MemCopyHostPtr != 0:
		if len(host) != size {
			return nil, compute.NewStatusError("clCreateBuffer", compute.StatusInvalidHostPtr)
		}
		hostPtr = unsafe.Pointer(&host[0])
	case host != nil:
		// A host pointer without a host-pointer flag is CL_INVALID_HOST_PTR.
		return nil, compute.NewStatusError("clCreateBuffer", compute.StatusInvalidHostPtr)
	}

	var status C.cl_int
	bytes := C.size_t(size * int(unsafe.Sizeof(float32(0))))
	mem := C.clCreateBuffer(c.ctx, toCLMemFlags(flags), bytes, hostPtr, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError(fmt.Sprintf("clCreateBuffer(%s)", flags), status)
	}
	return &buffer{mem: mem, n: size, flags: flags}, nil
}

func (c *clContext) CreateQueue(d compute.Device) (compute.Queue, error) {
	if c.ctx == nil {
		return nil, compute.ErrReleased
	}
	dev, ok := d.(*device)
	if !ok {
		return nil, fmt.Errorf("opencl: foreign device handle %T", d)
	}

	var status C.cl_int
	q := C.clsaxpy_create_queue(c.ctx, dev.id, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateCommandQueue", status)
	}
	return &queue{q: q}, nil
}

func (c *clContext) Release() error {
	if c.ctx == nil {
		return nil
	}
	status := C.clReleaseContext(c.ctx)
	c.ctx = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseContext", status)
	}
	return nil
}

type program struct {
	prog C.cl_program
	ctx  *clContext
}

func (p *program) Build(devices []compute.Device, options string) error {
	if p.prog == nil {
		return compute.ErrReleased
	}

	ids, devs, err := deviceIDs(devices)
	if err != nil {
		return err
	}

	var opts *C.char
	if options != "" {
		opts = C.CString(options)
		defer C.free(unsafe.Pointer(opts))
	}

	var idPtr *C.cl_device_id
	if len(ids) > 0 {
		idPtr = &ids[0]
	}

	status := C.clBuildProgram(p.prog, C.cl_uint(len(ids)), idPtr, opts, nil, nil)
	if status == C.CL_SUCCESS {
		return nil
	}

	buildErr := statusError("clBuildProgram", status)
	if status != C.CL_BUILD_PROGRAM_FAILURE {
		return buildErr
	}

	if len(devs) == 0 {
		devs = p.ctx.devices
	}
	for _, dev := range devs {
		log, err := p.buildLog(dev)
		if err != nil {
			slog.Error("OpenCL: failed to fetch build log", "device", dev.info.Name, "err", err)
			continue
		}
		if log == "" {
			continue
		}
		return &compute.BuildError{Device: dev.info.Name, Log: log, Err: buildErr}
	}
	return &compute.BuildError{Err: buildErr}
}

func (p *program) BuildLog(d compute.Device) (string, error) {
	if p.prog == nil {
		return "", compute.ErrReleased
	}
	dev, ok := d.(*device)
	if !ok {
		return "", fmt.Errorf("opencl: foreign device handle %T", d)
	}
	return p.buildLog(dev)
}

func (p *program) buildLog(dev *device) (string, error) {
	return queryString("clGetProgramBuildInfo", func(size C.size_t, value unsafe.Pointer, ret *C.size_t) C.cl_int {
		return C.clGetProgramBuildInfo(p.prog, dev.id, C.CL_PROGRAM_BUILD_LOG, size, value, ret)
	})
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	if p.prog == nil {
		return nil, compute.ErrReleased
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var status C.cl_int
	k := C.clCreateKernel(p.prog, cname, &status)
	if status != C.CL_SUCCESS {
		return nil, fmt.Errorf("kernel %q: %w", name, statusError("clCreateKernel", status))
	}
	return &kernel{k: k, name: name}, nil
}

func (p *program) Release() error {
	if p.prog == nil {
		return nil
	}
	status := C.clReleaseProgram(p.prog)
	p.prog = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseProgram", status)
	}
	return nil
}

type kernel struct {
	k    C.cl_kernel
	name string
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) SetBufferArg(index int, b compute.Buffer) error {
	if k.k == nil {
		return compute.ErrReleased
	}
	buf, ok := b.(*buffer)
	if !ok {
		return fmt.Errorf("opencl: foreign buffer handle %T", b)
	}
	status := C.clSetKernelArg(k.k, C.cl_uint(index), C.size_t(unsafe.Sizeof(buf.mem)), unsafe.Pointer(&buf.mem))
	if status != C.CL_SUCCESS {
		return statusError(fmt.Sprintf("clSetKernelArg(%d)", index), status)
	}
	return nil
}

func (k *kernel) SetFloat32Arg(index int, v float32) error {
	if k.k == nil {
		return compute.ErrReleased
	}
	val := C.cl_float(v)
	status := C.clSetKernelArg(k.k, C.cl_uint(index), C.size_t(unsafe.Sizeof(val)), unsafe.Pointer(&val))
	if status != C.CL_SUCCESS {
		return statusError(fmt.Sprintf("clSetKernelArg(%d)", index), status)
	}
	return nil
}

func (k *kernel) Release() error {
	if k.k == nil {
		return nil
	}
	status := C.clReleaseKernel(k.k)
	k.k = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseKernel", status)
	}
	return nil
}

type buffer struct {
	mem   C.cl_mem
	n     int
	flags compute.MemFlags
}

func (b *buffer) Len() int                { return b.n }
func (b *buffer) Flags() compute.MemFlags { return b.flags }

func (b *buffer) Release() error {
	if b.mem == nil {
		return nil
	}
	status := C.clReleaseMemObject(b.mem)
	b.mem = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseMemObject", status)
	}
	return nil
}

type queue struct {
	q C.cl_command_queue
}

func (q *queue) EnqueueNDRange(k compute.Kernel, global, local int) error {
	if q.q == nil {
		return compute.ErrReleased
	}
	kern, ok := k.(*kernel)
	if !ok {
		return fmt.Errorf("opencl: foreign kernel handle %T", k)
	}
	if global <= 0 {
		return compute.NewStatusError("clEnqueueNDRangeKernel", compute.StatusInvalidGlobalWorkSize)
	}

	g := C.size_t(global)
	var localPtr *C.size_t
	if local > 0 {
		l := C.size_t(local)
		localPtr = &l
	}

	status := C.clEnqueueNDRangeKernel(q.q, kern.k, 1, nil, &g, localPtr, 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueNDRangeKernel", status)
	}
	return nil
}

// EnqueueReadBuffer always reads with CL_TRUE: dst is Go memory and must not
// be referenced by the runtime after the call returns.
func (q *queue) EnqueueReadBuffer(b compute.Buffer, _ bool, dst []float32) error {
	if q.q == nil {
		return compute.ErrReleased
	}
	buf, ok := b.(*buffer)
	if !ok {
		return fmt.Errorf("opencl: foreign buffer handle %T", b)
	}
	if len(dst) == 0 || len(dst) > buf.n {
		return compute.NewStatusError("clEnqueueReadBuffer", compute.StatusInvalidValue)
	}

	bytes := C.size_t(len(dst) * int(unsafe.Sizeof(float32(0))))
	status := C.clEnqueueReadBuffer(q.q, buf.mem, C.CL_TRUE, 0, bytes, unsafe.Pointer(&dst[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer", status)
	}
	return nil
}

func (q *queue) Finish() error {
	if q.q == nil {
		return compute.ErrReleased
	}
	if status := C.clFinish(q.q); status != C.CL_SUCCESS {
		return statusError("clFinish", status)
	}
	return nil
}

func (q *queue) Release() error {
	if q.q == nil {
		return nil
	}
	status := C.clReleaseCommandQueue(q.q)
	q.q = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseCommandQueue", status)
	}
	return nil
}

func deviceIDs(devices []compute.Device) ([]C.cl_device_id, []*device, error) {
	ids := make([]C.cl_device_id, 0, len(devices))
	devs := make([]*device, 0, len(devices))
	for _, d := range devices {
		dev, ok := d.(*device)
		if !ok {
			return nil, nil, fmt.Errorf("opencl: foreign device handle %T", d)
		}
		ids = append(ids, dev.id)
		devs = append(devs, dev)
	}
	return ids, devs, nil
}

// infoQuery is one clGet*Info call with the param bound.
type infoQuery func(size C.size_t, value unsafe.Pointer, ret *C.size_t) C.cl_int

func platformQuery(id C.cl_platform_id, param C.cl_platform_info) infoQuery {
	return func(size C.size_t, value unsafe.Pointer, ret *C.size_t) C.cl_int {
		return C.clGetPlatformInfo(id, param, size, value, ret)
	}
}

func deviceQuery(id C.cl_device_id, param C.cl_device_info) infoQuery {
	return func(size C.size_t, value unsafe.Pointer, ret *C.size_t) C.cl_int {
		return C.clGetDeviceInfo(id, param, size, value, ret)
	}
}

// queryString asks for the length first, then the value, and strips the
// C terminator.
func queryString(op string, q infoQuery) (string, error) {
	var n C.size_t
	if status := q(0, nil, &n); status != C.CL_SUCCESS {
		return "", statusError(op+"(size)", status)
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, int(n))
	if status := q(n, unsafe.Pointer(&buf[0]), nil); status != C.CL_SUCCESS {
		return "", statusError(op+"(value)", status)
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}

func describeDevice(id C.cl_device_id) (compute.DeviceInfo, error) {
	var info compute.DeviceInfo
	for _, f := range []struct {
		dst   *string
		param C.cl_device_info
	}{
		{&info.Name, C.CL_DEVICE_NAME},
		{&info.Vendor, C.CL_DEVICE_VENDOR},
		{&info.Version, C.CL_DEVICE_VERSION},
	} {
		v, err := queryString("clGetDeviceInfo", deviceQuery(id, f.param))
		if err != nil {
			return compute.DeviceInfo{}, err
		}
		*f.dst = v
	}

	var bits C.cl_device_type
	if status := deviceQuery(id, C.CL_DEVICE_TYPE)(C.size_t(unsafe.Sizeof(bits)), unsafe.Pointer(&bits), nil); status != C.CL_SUCCESS {
		return compute.DeviceInfo{}, statusError("clGetDeviceInfo(type)", status)
	}
	info.Type = compute.DeviceTypeUnknown
	for _, t := range deviceTypes {
		if bits&t.bits != 0 {
			info.Type = t.typ
			break
		}
	}

	var units C.cl_uint
	if status := deviceQuery(id, C.CL_DEVICE_MAX_COMPUTE_UNITS)(C.size_t(unsafe.Sizeof(units)), unsafe.Pointer(&units), nil); status != C.CL_SUCCESS {
		return compute.DeviceInfo{}, statusError("clGetDeviceInfo(units)", status)
	}
	info.MaxComputeUnits = uint32(units)
	return info, nil
}

// deviceTypes pairs cl_device_type bits with DeviceType, most specific first.
var deviceTypes = []struct {
	bits C.cl_device_type
	typ  compute.DeviceType
}{
	{C.CL_DEVICE_TYPE_GPU, compute.DeviceTypeGPU},
	{C.CL_DEVICE_TYPE_CPU, compute.DeviceTypeCPU},
	{C.CL_DEVICE_TYPE_ACCELERATOR, compute.DeviceTypeAccelerator},
	{C.CL_DEVICE_TYPE_DEFAULT, compute.DeviceTypeDefault},
}

func toCLDeviceType(t compute.DeviceType) (C.cl_device_type, error) {
	if t == compute.DeviceTypeAll {
		return C.CL_DEVICE_TYPE_ALL, nil
	}
	for _, dt := range deviceTypes {
		if dt.typ == t {
			return dt.bits, nil
		}
	}
	return 0, compute.NewStatusError("clGetDeviceIDs", compute.StatusInvalidDeviceType)
}

func toCLMemFlags(f compute.MemFlags) C.cl_mem_flags {
	var out C.cl_mem_flags
	if f&compute.MemReadWrite != 0 {
		out |= C.CL_MEM_READ_WRITE
	}
	if f&compute.MemWriteOnly != 0 {
		out |= C.CL_MEM_WRITE_ONLY
	}
	if f&compute.MemReadOnly != 0 {
		out |= C.CL_MEM_READ_ONLY
	}
	if f&compute.MemCopyHostPtr != 0 {
		out |= C.CL_MEM_COPY_HOST_PTR
	}
	return out
}

func statusError(op string, status C.cl_int) error {
	return compute.NewStatusError(op, int(status))
}
