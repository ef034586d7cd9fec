package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"teetime-api/internal/model"
)

const ServiceName = "golf.v1.GolfService"

// FullMethod returns the gRPC path of a GolfService method.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

type GolfServiceServer interface {
	Register(context.Context, *RegisterRequest) (*AuthResponse, error)
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*AuthResponse, error)

	GetCurrentUser(context.Context, *Empty) (*model.User, error)
	UpdateCurrentUser(context.Context, *UpdateCurrentUserRequest) (*model.User, error)
	UpdateUserById(context.Context, *UpdateUserRequest) (*model.User, error)
	GetPaginatedUsers(context.Context, *ListUsersRequest) (*UserPage, error)
	GetPlans(context.Context, *Empty) (*PlansResponse, error)

	GetGroups(context.Context, *Empty) (*GroupsResponse, error)
	GetGroupById(context.Context, *GroupIDRequest) (*Group, error)
	CreateGroup(context.Context, *CreateGroupRequest) (*Group, error)
	UpdateGroup(context.Context, *UpdateGroupRequest) (*Group, error)
	DeleteGroup(context.Context, *GroupIDRequest) (*Empty, error)
	AddGroupMember(context.Context, *AddMemberRequest) (*model.GroupMember, error)
	UpdateGroupMember(context.Context, *UpdateMemberRequest) (*model.GroupMember, error)
	RemoveGroupMember(context.Context, *MemberRequest) (*Empty, error)
	LeaveGroup(context.Context, *GroupIDRequest) (*Empty, error)

	GetCourses(context.Context, *Empty) (*CoursesResponse, error)
	GetCourseById(context.Context, *CourseIDRequest) (*Course, error)
	CreateCourse(context.Context, *CreateCourseRequest) (*Course, error)
	UpdateCourse(context.Context, *UpdateCourseRequest) (*Course, error)
	DeleteCourse(context.Context, *CourseIDRequest) (*Empty, error)
	GetCourseHistory(context.Context, *CourseIDRequest) (*HistoryResponse, error)
	GetGroupCourseHistory(context.Context, *GroupIDRequest) (*HistoryResponse, error)
	RecordRound(context.Context, *TeeTimeIDRequest) (*model.CourseRound, error)

	GetUpcomingTeeTimes(context.Context, *UpcomingRequest) (*TeeTimesResponse, error)
	GetTeeTimes(context.Context, *GroupIDRequest) (*TeeTimesResponse, error)
	GetTeeTimeById(context.Context, *TeeTimeIDRequest) (*TeeTimeDetail, error)
	CreateTeeTime(context.Context, *CreateTeeTimeRequest) (*TeeTimeDetail, error)
	UpdateTeeTime(context.Context, *UpdateTeeTimeRequest) (*TeeTimeDetail, error)
	DeleteTeeTime(context.Context, *TeeTimeIDRequest) (*Empty, error)
	JoinTeeTime(context.Context, *TeeTimeIDRequest) (*RosterChange, error)
	LeaveTeeTime(context.Context, *TeeTimeIDRequest) (*RosterChange, error)
}

// unary adapts a server method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(GolfServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, status.Error(codes.InvalidArgument, "malformed request")
			}
			s := srv.(GolfServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GolfServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", GolfServiceServer.Register),
		unary("Login", GolfServiceServer.Login),
		unary("RefreshToken", GolfServiceServer.RefreshToken),

		unary("GetCurrentUser", GolfServiceServer.GetCurrentUser),
		unary("UpdateCurrentUser", GolfServiceServer.UpdateCurrentUser),
		unary("UpdateUserById", GolfServiceServer.UpdateUserById),
		unary("GetPaginatedUsers", GolfServiceServer.GetPaginatedUsers),
		unary("GetPlans", GolfServiceServer.GetPlans),

		unary("GetGroups", GolfServiceServer.GetGroups),
		unary("GetGroupById", GolfServiceServer.GetGroupById),
		unary("CreateGroup", GolfServiceServer.CreateGroup),
		unary("UpdateGroup", GolfServiceServer.UpdateGroup),
		unary("DeleteGroup", GolfServiceServer.DeleteGroup),
		unary("AddGroupMember", GolfServiceServer.AddGroupMember),
		unary("UpdateGroupMember", GolfServiceServer.UpdateGroupMember),
		unary("RemoveGroupMember", GolfServiceServer.RemoveGroupMember),
		unary("LeaveGroup", GolfServiceServer.LeaveGroup),

		unary("GetCourses", GolfServiceServer.GetCourses),
		unary("GetCourseById", GolfServiceServer.GetCourseById),
		unary("CreateCourse", GolfServiceServer.CreateCourse),
		unary("UpdateCourse", GolfServiceServer.UpdateCourse),
		unary("DeleteCourse", GolfServiceServer.DeleteCourse),
		unary("GetCourseHistory", GolfServiceServer.GetCourseHistory),
		unary("GetGroupCourseHistory", GolfServiceServer.GetGroupCourseHistory),
		unary("RecordRound", GolfServiceServer.RecordRound),

		unary("GetUpcomingTeeTimes", GolfServiceServer.GetUpcomingTeeTimes),
		unary("GetTeeTimes", GolfServiceServer.GetTeeTimes),
		unary("GetTeeTimeById", GolfServiceServer.GetTeeTimeById),
		unary("CreateTeeTime", GolfServiceServer.CreateTeeTime),
		unary("UpdateTeeTime", GolfServiceServer.UpdateTeeTime),
		unary("DeleteTeeTime", GolfServiceServer.DeleteTeeTime),
		unary("JoinTeeTime", GolfServiceServer.JoinTeeTime),
		unary("LeaveTeeTime", GolfServiceServer.LeaveTeeTime),
	},
	Metadata: "golf/v1/golf.json",
}

func RegisterGolfServiceServer(s grpc.ServiceRegistrar, srv GolfServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Methods lists the method names in ServiceDesc.
func Methods() []string {
	out := make([]string, len(ServiceDesc.Methods))
	for i, m := range ServiceDesc.Methods {
		out[i] = m.MethodName
	}
	return out
}

// Client calls GolfService methods over any gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewGolfServiceClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with in and decodes the reply into out.
func (c *Client) Call(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	return c.cc.Invoke(ctx, FullMethod(method), in, out, opts...)
}
