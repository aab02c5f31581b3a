package metadata

/**
 * @brief The shader stages a device context binds resources for.
 * The values double as indices into per-stage tables.
 */
type ShaderType uint8

const (
	/** @brief Vertex shader. */
	SHADER_TYPE_VERTEX ShaderType = iota
	/** @brief Pixel (fragment) shader. */
	SHADER_TYPE_PIXEL
	/** @brief Geometry shader. */
	SHADER_TYPE_GEOMETRY
	/** @brief Hull (tessellation control) shader. */
	SHADER_TYPE_HULL
	/** @brief Domain (tessellation evaluation) shader. */
	SHADER_TYPE_DOMAIN
	/** @brief Compute shader. */
	SHADER_TYPE_COMPUTE

	/** @brief Number of different shader types. */
	NUM_SHADER_TYPES int = 6
)

var shaderTypeNames = [NUM_SHADER_TYPES]string{"VS", "PS", "GS", "HS", "DS", "CS"}

func (t ShaderType) String() string {
	if int(t) < NUM_SHADER_TYPES {
		return shaderTypeNames[t]
	}
	return "unknown"
}

func (t ShaderType) IsValid() bool {
	return int(t) < NUM_SHADER_TYPES
}

// GraphicsShaderTypes lists the stages a graphics pipeline may populate.
var GraphicsShaderTypes = [...]ShaderType{
	SHADER_TYPE_VERTEX,
	SHADER_TYPE_PIXEL,
	SHADER_TYPE_GEOMETRY,
	SHADER_TYPE_HULL,
	SHADER_TYPE_DOMAIN,
}

/**
 * @brief A compiled shader owned by the resource layer. Only its identity
 * and stage matter to a device context.
 */
type Shader interface {
	DeviceObject
	Name() string
	ShaderType() ShaderType
}
