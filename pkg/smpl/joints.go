package smpl

// Joint name tables, in model joint order. Index 0 is always the pelvis.

var smplxJointNames = []string{
	"pelvis", "left_hip", "right_hip", "spine1", "left_knee", "right_knee",
	"spine2", "left_ankle", "right_ankle", "spine3", "left_foot", "right_foot",
	"neck", "left_collar", "right_collar", "head", "left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow", "left_wrist", "right_wrist",
	"jaw", "left_eye_smplhf", "right_eye_smplhf",
	"left_index1", "left_index2", "left_index3",
	"left_middle1", "left_middle2", "left_middle3",
	"left_pinky1", "left_pinky2", "left_pinky3",
	"left_ring1", "left_ring2", "left_ring3",
	"left_thumb1", "left_thumb2", "left_thumb3",
	"right_index1", "right_index2", "right_index3",
	"right_middle1", "right_middle2", "right_middle3",
	"right_pinky1", "right_pinky2", "right_pinky3",
	"right_ring1", "right_ring2", "right_ring3",
	"right_thumb1", "right_thumb2", "right_thumb3",
}

var smplhJointNames = []string{
	"pelvis", "left_hip", "right_hip", "spine1", "left_knee", "right_knee",
	"spine2", "left_ankle", "right_ankle", "spine3", "left_foot", "right_foot",
	"neck", "left_collar", "right_collar", "head", "left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow", "left_wrist", "right_wrist",
	"left_index1", "left_index2", "left_index3",
	"left_middle1", "left_middle2", "left_middle3",
	"left_pinky1", "left_pinky2", "left_pinky3",
	"left_ring1", "left_ring2", "left_ring3",
	"left_thumb1", "left_thumb2", "left_thumb3",
	"right_index1", "right_index2", "right_index3",
	"right_middle1", "right_middle2", "right_middle3",
	"right_pinky1", "right_pinky2", "right_pinky3",
	"right_ring1", "right_ring2", "right_ring3",
	"right_thumb1", "right_thumb2", "right_thumb3",
}

var suprJointNames = []string{
	"pelvis", "left_hip", "right_hip", "spine1", "left_knee", "right_knee",
	"spine2", "left_ankle", "right_ankle", "spine3", "left_foot", "right_foot",
	"neck", "left_collar", "right_collar", "head", "left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow", "left_wrist", "right_wrist",
	"jaw", "left_eye", "right_eye",
	"left_index1", "left_index2", "left_index3",
	"left_middle1", "left_middle2", "left_middle3",
	"left_pinky1", "left_pinky2", "left_pinky3",
	"left_ring1", "left_ring2", "left_ring3",
	"left_thumb1", "left_thumb2", "left_thumb3",
	"right_index1", "right_index2", "right_index3",
	"right_middle1", "right_middle2", "right_middle3",
	"right_pinky1", "right_pinky2", "right_pinky3",
	"right_ring1", "right_ring2", "right_ring3",
	"right_thumb1", "right_thumb2", "right_thumb3",
	"left_bigtoe1", "left_bigtoe2", "left_indextoe1", "left_indextoe2",
	"left_middletoe1", "left_middletoe2", "left_ringtoe1", "left_ringtoe2",
	"left_pinkytoe1", "left_pinkytoe2",
	"right_bigtoe1", "right_bigtoe2", "right_indextoe1", "right_indextoe2",
	"right_middletoe1", "right_middletoe2", "right_ringtoe1", "right_ringtoe2",
	"right_pinkytoe1", "right_pinkytoe2",
}
